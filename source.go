package ncd

// ValueSource produces the (key, value) pairs a Build writes into an NCD
// file. Iter may be called more than once; each call starts a fresh,
// independent, non-restartable iterator over the same underlying data.
type ValueSource interface {
	Iter() (ValueIterator, error)
}

// ValueIterator yields one (key, value) byte pair per call to Next. Next
// returns ok=false once exhausted; any error aborts iteration immediately.
type ValueIterator interface {
	Next() (key, value []byte, ok bool, err error)
}
