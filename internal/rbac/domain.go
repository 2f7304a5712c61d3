package rbac

import "github.com/odyssey-erp/odyssey-procure/internal/shared"

// Role names known to the platform.
const (
	RoleAdmin      = "admin"
	RolePurchasing = "purchasing"
	RoleApprover   = "approver"
	RoleWarehouse  = "warehouse"
	RoleFinance    = "finance"
	RoleViewer     = "viewer"
)

// Role represents a high-level permission grouping.
type Role struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

// DefaultRoles is the built-in role catalogue.
func DefaultRoles() []Role {
	return []Role{
		{Name: RoleAdmin, Description: "Full access", Permissions: shared.CoreScopes()},
		{Name: RolePurchasing, Description: "Raises requests, orders and returns", Permissions: []string{
			shared.PermProcurementView, shared.PermProcurementEdit, shared.PermProcurementCancel,
			shared.PermInventoryView, shared.PermBillsView, shared.PermReportsView,
		}},
		{Name: RoleApprover, Description: "Approves procurement documents", Permissions: []string{
			shared.PermProcurementView, shared.PermProcurementApprove, shared.PermProcurementCancel,
			shared.PermInventoryView, shared.PermBillsView, shared.PermReportsView, shared.PermAuditView,
		}},
		{Name: RoleWarehouse, Description: "Receives goods and maintains stock", Permissions: []string{
			shared.PermProcurementView, shared.PermProcurementReceive,
			shared.PermInventoryView, shared.PermInventoryEdit, shared.PermInventoryAdjust,
		}},
		{Name: RoleFinance, Description: "Records and settles vendor bills", Permissions: []string{
			shared.PermProcurementView, shared.PermBillsView, shared.PermBillsEdit, shared.PermBillsPay,
			shared.PermReportsView, shared.PermAuditView,
		}},
		{Name: RoleViewer, Description: "Read-only access", Permissions: []string{
			shared.PermProcurementView, shared.PermBillsView, shared.PermInventoryView, shared.PermReportsView,
		}},
	}
}
