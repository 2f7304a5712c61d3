package shared

// Procurement and inventory permissions.
const (
	PermProcurementView    = "procurement.view"
	PermProcurementEdit    = "procurement.edit"
	PermProcurementApprove = "procurement.approve"
	PermProcurementCancel  = "procurement.cancel"
	PermProcurementReceive = "procurement.receive"

	PermBillsView = "bills.view"
	PermBillsEdit = "bills.edit"
	PermBillsPay  = "bills.pay"

	PermInventoryView   = "inventory.view"
	PermInventoryEdit   = "inventory.edit"
	PermInventoryAdjust = "inventory.adjust"

	PermReportsView = "reports.view"
	PermAuditView   = "audit.view"

	PermUsersManage = "users.manage"
)

// CoreScopes lists every permission known to the platform.
func CoreScopes() []string {
	return []string{
		PermProcurementView,
		PermProcurementEdit,
		PermProcurementApprove,
		PermProcurementCancel,
		PermProcurementReceive,
		PermBillsView,
		PermBillsEdit,
		PermBillsPay,
		PermInventoryView,
		PermInventoryEdit,
		PermInventoryAdjust,
		PermReportsView,
		PermAuditView,
		PermUsersManage,
	}
}
