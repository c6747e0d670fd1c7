// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns. Repositories convert between both representations with the
// ToDomain / FromDomain mappers.
package models
