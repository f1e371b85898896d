package models

import (
	"encoding/json"
	"strings"
)

// TenantConfigSortKey is the sort key of a tenant's vector-store configuration row
const TenantConfigSortKey = "os_config"

// TenantConfig holds the vector-store connection parameters of one tenant.
// It is read once per request and never mutated by the query path.
type TenantConfig struct {
	TenantID  string `json:"tenant_id" db:"tenant_id"`
	StoreHost string `json:"store_host" db:"store_host"`
	IndexName string `json:"index_name" db:"index_name"`
}

// TenantPartitionKey returns the partition key shared by all rows of a tenant
func TenantPartitionKey(tenantID string) string {
	return "tenant#" + tenantID
}

// MissingField returns the name of the first empty required field, or "" when complete
func (c *TenantConfig) MissingField() string {
	switch {
	case strings.TrimSpace(c.StoreHost) == "":
		return "store_host"
	case strings.TrimSpace(c.IndexName) == "":
		return "index_name"
	}
	return ""
}

// TableName returns the table name for the TenantConfig model
func (TenantConfig) TableName() string {
	return "tenant_configs"
}

// MarshalBinary implements encoding.BinaryMarshaler for Redis
func (c *TenantConfig) MarshalBinary() ([]byte, error) {
	return json.Marshal(c)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler for Redis
func (c *TenantConfig) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, c)
}
