package signer

// Verifier checks detached signatures over downloaded content
type Verifier interface {
	// Verify returns an error unless signature is a valid detached
	// signature of data by a trusted key
	Verify(data, signature []byte) error
}
