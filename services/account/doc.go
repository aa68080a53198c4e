// Package account implements the account service: accounts, their roles
// and the session tokens issued for them. Passwords are stored as bcrypt
// hashes.
package account
