package chain

// AccountUpdate is one raw account change delivered by the subscription.
type AccountUpdate struct {
	Pubkey     string
	Owner      string
	Lamports   uint64
	Data       []byte
	Executable bool
	RentEpoch  uint64
	Slot       uint64
}

// DecodedAccount is an update after passing through a Decoder.
type DecodedAccount struct {
	Update AccountUpdate
	// Layout names the account variant the decoder recognized.
	Layout string
	Value  any
}
