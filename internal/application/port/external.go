package port

// IDGenerator issues server-side expense identifiers
type IDGenerator interface {
	NextID() string
}

// PasswordHasher hashes and verifies trip and admin passwords
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}
