package couchbase

// CasSetter is implemented by documents that track their CAS value. Get
// records the CAS of every document it reads into one.
type CasSetter interface {
	SetCas(c uint64)
}

// Cas can be embedded in documents that need optimistic concurrency
// control. It is never serialised.
type Cas struct {
	c uint64
}

// GetCas returns the current CAS value.
func (c *Cas) GetCas() uint64 {
	return c.c
}

// SetCas updates the CAS value.
func (c *Cas) SetCas(cas uint64) {
	c.c = cas
}
