package atomic64

// The operations below are compositions over the same guarded word. Each
// performs its read-modify-write inside the guard, so they participate in
// the same total order as Init, CompareExchange and FetchAdd.

// Load returns the current value of the word.
func (u *Uint64) Load() uint64 {
	u.guard.Acquire()
	v := u.value
	u.guard.Release()
	return v
}

// Store replaces the value of the word.
func (u *Uint64) Store(val uint64) {
	u.guard.Acquire()
	u.value = val
	u.guard.Release()
}

// Exchange stores newval and returns the value the word held before.
func (u *Uint64) Exchange(newval uint64) uint64 {
	u.guard.Acquire()
	prev := u.value
	u.value = newval
	u.guard.Release()
	return prev
}

// FetchSub subtracts delta from the word and returns the previous value,
// wrapping like FetchAdd.
func (u *Uint64) FetchSub(delta int64) uint64 {
	return u.FetchAdd(-delta)
}

// AddFetch adds delta to the word and returns the resulting value.
func (u *Uint64) AddFetch(delta int64) uint64 {
	return u.FetchAdd(delta) + uint64(delta)
}

// SubFetch subtracts delta from the word and returns the resulting value.
func (u *Uint64) SubFetch(delta int64) uint64 {
	return u.FetchSub(delta) - uint64(delta)
}

// FetchAnd ANDs the word with mask and returns the previous value.
func (u *Uint64) FetchAnd(mask uint64) uint64 {
	u.guard.Acquire()
	prev := u.value
	u.value = prev & mask
	u.guard.Release()
	return prev
}

// FetchOr ORs the word with mask and returns the previous value.
func (u *Uint64) FetchOr(mask uint64) uint64 {
	u.guard.Acquire()
	prev := u.value
	u.value = prev | mask
	u.guard.Release()
	return prev
}
