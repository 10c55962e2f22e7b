package model

// WalletSession is the in-memory view of a connected wallet. It is created on
// a successful connection and replaced or cleared wholesale on reconnect,
// disconnect, or an account-change notification; fields are never mutated
// piecemeal. It is never persisted.
type WalletSession struct {
	Address     string
	ChainID     int64
	IsConnected bool
}
