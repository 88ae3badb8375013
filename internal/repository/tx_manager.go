package repository

import "context"

// 1トランザクション分のrepository一式。WithinTxの中でだけ使う。
type TxRepos interface {
	Orders() OrderRepository
	OrderItems() OrderItemRepository
	Products() ProductRepository
	Inventory() InventoryRepository
	ShippingZones() ShippingZoneRepository
	AuditLogs() AuditLogRepository
}

// fnがerrorを返したらロールバック、nilならcommit。
// 返ったerrorはfnのものをそのまま返す（commit失敗時はDBのerror）。
type TransactionManager interface {
	WithinTx(ctx context.Context, fn func(r TxRepos) error) error
}
