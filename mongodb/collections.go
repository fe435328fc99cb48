package mongodb

const (
	DefaultUsersDB    = "users"
	DefaultProductsDB = "products"

	// IdentifiersCollection reserves every username and email across all
	// role partitions. Partition collections are named after domain.Role.
	IdentifiersCollection = "identifiers"
)
