package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/floradesk/flora_backend/config"
	"github.com/floradesk/flora_backend/models"
	"github.com/floradesk/flora_backend/utils"
	"github.com/floradesk/flora_backend/workflow"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// End-to-end ledger consistency checks against real MySQL + redis in docker.
// Guarded by INTEGRATION_TESTS so the suite stays runnable without docker.

func setupIntegration(t *testing.T) context.Context {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "flora_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if err := config.ClearRedis(context.Background()); err != nil {
		t.Fatalf("flush redis: %v", err)
	}
	models.MigrateTable()

	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, uuid.NewString())
	ctx = utils.SetUserNameInContext(ctx, "Test")
	return ctx
}

type fixture struct {
	org           models.Organization
	tradingPoint  models.TradingPoint
	warehouse     models.Warehouse
	spare         models.Warehouse
	wallet        models.Wallet
	paymentMethod models.PaymentMethod
	customer      models.Customer
	rose          models.Nomenclature
}

func seedFixture(t *testing.T, ctx context.Context) *fixture {
	t.Helper()
	db := config.GetDB()

	fx := &fixture{}
	fx.org = models.Organization{ID: uuid.NewString(), Name: "Flora Test"}
	if err := db.WithContext(ctx).Create(&fx.org).Error; err != nil {
		t.Fatalf("create organization: %v", err)
	}

	fx.tradingPoint = models.TradingPoint{
		ID:             uuid.NewString(),
		OrganizationId: fx.org.ID,
		Name:           "Main Shop",
		NumberPrefix:   "MS",
	}
	if err := db.WithContext(ctx).Create(&fx.tradingPoint).Error; err != nil {
		t.Fatalf("create trading point: %v", err)
	}

	fx.warehouse = models.Warehouse{
		ID:                uuid.NewString(),
		OrganizationId:    fx.org.ID,
		TradingPointId:    &fx.tradingPoint.ID,
		Name:              "Main Warehouse",
		IsDefaultForSales: utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&fx.warehouse).Error; err != nil {
		t.Fatalf("create warehouse: %v", err)
	}

	// a second, non-default warehouse; sale fulfillment must skip it
	fx.spare = models.Warehouse{
		ID:                uuid.NewString(),
		OrganizationId:    fx.org.ID,
		TradingPointId:    &fx.tradingPoint.ID,
		Name:              "Back Room",
		IsDefaultForSales: utils.NewFalse(),
	}
	if err := db.WithContext(ctx).Create(&fx.spare).Error; err != nil {
		t.Fatalf("create spare warehouse: %v", err)
	}

	fx.wallet = models.Wallet{
		ID:             uuid.NewString(),
		OrganizationId: fx.org.ID,
		TradingPointId: &fx.tradingPoint.ID,
		Name:           "Cash Drawer",
		Type:           models.WalletTypeCash,
		Balance:        decimal.NewFromInt(100),
	}
	if err := db.WithContext(ctx).Create(&fx.wallet).Error; err != nil {
		t.Fatalf("create wallet: %v", err)
	}

	fx.paymentMethod = models.PaymentMethod{
		ID:             uuid.NewString(),
		OrganizationId: fx.org.ID,
		Name:           "Cash",
		WalletId:       &fx.wallet.ID,
	}
	if err := db.WithContext(ctx).Create(&fx.paymentMethod).Error; err != nil {
		t.Fatalf("create payment method: %v", err)
	}

	fx.customer = models.Customer{
		ID:             uuid.NewString(),
		OrganizationId: fx.org.ID,
		Name:           "Test Customer",
	}
	if err := db.WithContext(ctx).Create(&fx.customer).Error; err != nil {
		t.Fatalf("create customer: %v", err)
	}

	fx.rose = models.Nomenclature{
		ID:             uuid.NewString(),
		OrganizationId: fx.org.ID,
		Name:           "Rose",
		Type:           models.NomenclatureTypeProduct,
		SalePrice:      decimal.NewFromInt(5),
	}
	if err := db.WithContext(ctx).Create(&fx.rose).Error; err != nil {
		t.Fatalf("create nomenclature: %v", err)
	}
	return fx
}

func TestSaleLedgerLifecycle(t *testing.T) {
	ctx := setupIntegration(t)
	fx := seedFixture(t, ctx)
	db := config.GetDB()

	// open a shift so sales attach to it
	shift, err := workflow.OpenShift(ctx, &workflow.OpenShiftRequest{
		OrganizationId: fx.org.ID,
		TradingPointId: fx.tradingPoint.ID,
		WalletId:       fx.wallet.ID,
	})
	if err != nil {
		t.Fatalf("OpenShift: %v", err)
	}
	if !shift.BalanceAtOpen.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("balance at open = %s, want 100", shift.BalanceAtOpen)
	}

	// a second open on the same wallet must refuse
	if _, err := workflow.OpenShift(ctx, &workflow.OpenShiftRequest{
		OrganizationId: fx.org.ID,
		TradingPointId: fx.tradingPoint.ID,
		WalletId:       fx.wallet.ID,
	}); err == nil {
		t.Fatalf("second OpenShift succeeded, want DuplicateOpenShiftError")
	}

	// receive 10 units @ cost 2.00
	batch, err := workflow.ProcessReceipt(ctx, &workflow.ReceiptRequest{
		OrganizationId: fx.org.ID,
		WarehouseId:    fx.warehouse.ID,
		NomenclatureId: fx.rose.ID,
		Quantity:       decimal.NewFromInt(10),
		PurchasePrice:  decimal.RequireFromString("2.00"),
		ArrivalDate:    time.Now(),
	})
	if err != nil {
		t.Fatalf("ProcessReceipt: %v", err)
	}
	if !batch.Remaining.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("batch remaining = %s, want 10", batch.Remaining)
	}

	qty, err := models.GetStockBalanceQuantity(db, ctx, fx.org.ID, fx.warehouse.ID, fx.rose.ID)
	if err != nil {
		t.Fatalf("GetStockBalanceQuantity: %v", err)
	}
	if !qty.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("stock balance = %s, want 10", qty)
	}

	// sell 4 units @ price 5.00, completed and paid
	sale, result, err := workflow.SaveSale(ctx, &workflow.SaleRequest{
		OrganizationId:  fx.org.ID,
		TradingPointId:  fx.tradingPoint.ID,
		Status:          models.SaleStatusCompleted,
		CustomerId:      &fx.customer.ID,
		PaymentMethodId: &fx.paymentMethod.ID,
		Items: []workflow.SaleItemRequest{
			{NomenclatureId: fx.rose.ID, Quantity: decimal.NewFromInt(4), UnitPrice: decimal.NewFromInt(5)},
		},
	})
	if err != nil {
		t.Fatalf("SaveSale: %v", err)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", result.Warnings)
	}
	if sale.CashShiftId == nil || *sale.CashShiftId != shift.ID {
		t.Fatalf("sale not attached to open shift")
	}
	if !sale.Total.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("sale total = %s, want 20", sale.Total)
	}

	movements, err := models.FetchSaleMovements(db, ctx, sale.ID)
	if err != nil {
		t.Fatalf("FetchSaleMovements: %v", err)
	}
	if len(movements) != 1 {
		t.Fatalf("sale movements = %d, want 1", len(movements))
	}
	if !movements[0].Quantity.Equal(decimal.NewFromInt(4)) || !movements[0].UnitPrice.Equal(decimal.RequireFromString("2.00")) {
		t.Fatalf("movement qty/cost = %s @ %s, want 4 @ 2.00", movements[0].Quantity, movements[0].UnitPrice)
	}

	qty, _ = models.GetStockBalanceQuantity(db, ctx, fx.org.ID, fx.warehouse.ID, fx.rose.ID)
	if !qty.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("stock balance after sale = %s, want 6", qty)
	}

	// exactly one transaction, crediting the wallet by 20
	txn, err := models.GetSaleTransaction(db, ctx, sale.ID)
	if err != nil {
		t.Fatalf("GetSaleTransaction: %v", err)
	}
	if txn == nil || !txn.Amount.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("sale transaction missing or wrong amount")
	}
	var wallet models.Wallet
	if err := db.WithContext(ctx).First(&wallet, "id = ?", fx.wallet.ID).Error; err != nil {
		t.Fatalf("reload wallet: %v", err)
	}
	if !wallet.Balance.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("wallet balance = %s, want 120", wallet.Balance)
	}

	var customer models.Customer
	if err := db.WithContext(ctx).First(&customer, "id = ?", fx.customer.ID).Error; err != nil {
		t.Fatalf("reload customer: %v", err)
	}
	if customer.PurchasesCount != 1 {
		t.Fatalf("purchases count = %d, want 1", customer.PurchasesCount)
	}

	// applying FIFO again must be a silent no-op
	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := workflow.ApplySaleFifo(tx, ctx, sale)
		return err
	})
	if err != nil {
		t.Fatalf("second ApplySaleFifo: %v", err)
	}
	movements, _ = models.FetchSaleMovements(db, ctx, sale.ID)
	if len(movements) != 1 {
		t.Fatalf("movements after re-apply = %d, want 1", len(movements))
	}
	qty, _ = models.GetStockBalanceQuantity(db, ctx, fx.org.ID, fx.warehouse.ID, fx.rose.ID)
	if !qty.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("stock balance after re-apply = %s, want 6", qty)
	}

	// re-saving the sale with the same payload keeps the transaction singular
	_, _, err = workflow.UpdateSale(ctx, sale.ID, &workflow.SaleRequest{
		OrganizationId:  fx.org.ID,
		TradingPointId:  fx.tradingPoint.ID,
		Status:          models.SaleStatusCompleted,
		CustomerId:      &fx.customer.ID,
		PaymentMethodId: &fx.paymentMethod.ID,
		Items: []workflow.SaleItemRequest{
			{NomenclatureId: fx.rose.ID, Quantity: decimal.NewFromInt(4), UnitPrice: decimal.NewFromInt(5)},
		},
	})
	if err != nil {
		t.Fatalf("UpdateSale: %v", err)
	}
	var txnCount int64
	if err := db.WithContext(ctx).Model(&models.Transaction{}).Where("sale_id = ?", sale.ID).Count(&txnCount).Error; err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	if txnCount != 1 {
		t.Fatalf("transactions per sale = %d, want 1", txnCount)
	}
	db.WithContext(ctx).First(&wallet, "id = ?", fx.wallet.ID)
	if !wallet.Balance.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("wallet balance after update = %s, want 120", wallet.Balance)
	}

	// cancelling the sale must roll back the draw, the stats and the money
	cancelReq := &workflow.SaleRequest{
		OrganizationId:  fx.org.ID,
		TradingPointId:  fx.tradingPoint.ID,
		Status:          models.SaleStatusCancelled,
		CustomerId:      &fx.customer.ID,
		PaymentMethodId: &fx.paymentMethod.ID,
		Items: []workflow.SaleItemRequest{
			{NomenclatureId: fx.rose.ID, Quantity: decimal.NewFromInt(4), UnitPrice: decimal.NewFromInt(5)},
		},
	}
	if _, _, err := workflow.UpdateSale(ctx, sale.ID, cancelReq); err != nil {
		t.Fatalf("cancel UpdateSale: %v", err)
	}
	qty, _ = models.GetStockBalanceQuantity(db, ctx, fx.org.ID, fx.warehouse.ID, fx.rose.ID)
	if !qty.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("stock balance after cancel = %s, want 10", qty)
	}
	movements, _ = models.FetchSaleMovements(db, ctx, sale.ID)
	if len(movements) != 0 {
		t.Fatalf("movements after cancel = %d, want 0", len(movements))
	}
	db.WithContext(ctx).Model(&models.Transaction{}).Where("sale_id = ?", sale.ID).Count(&txnCount)
	if txnCount != 0 {
		t.Fatalf("transactions after cancel = %d, want 0", txnCount)
	}
	db.WithContext(ctx).First(&wallet, "id = ?", fx.wallet.ID)
	if !wallet.Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("wallet balance after cancel = %s, want 100", wallet.Balance)
	}
	db.WithContext(ctx).First(&customer, "id = ?", fx.customer.ID)
	if customer.PurchasesCount != 0 {
		t.Fatalf("purchases count after cancel = %d, want 0", customer.PurchasesCount)
	}

	// and completing it again restores every effect
	completeReq := *cancelReq
	completeReq.Status = models.SaleStatusCompleted
	if _, _, err := workflow.UpdateSale(ctx, sale.ID, &completeReq); err != nil {
		t.Fatalf("reinstate UpdateSale: %v", err)
	}
	qty, _ = models.GetStockBalanceQuantity(db, ctx, fx.org.ID, fx.warehouse.ID, fx.rose.ID)
	if !qty.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("stock balance after reinstate = %s, want 6", qty)
	}
	db.WithContext(ctx).First(&wallet, "id = ?", fx.wallet.ID)
	if !wallet.Balance.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("wallet balance after reinstate = %s, want 120", wallet.Balance)
	}
	db.WithContext(ctx).First(&customer, "id = ?", fx.customer.ID)
	if customer.PurchasesCount != 1 {
		t.Fatalf("purchases count after reinstate = %d, want 1", customer.PurchasesCount)
	}

	// sell 8 with only 6 in stock: never fails, warns, goes negative
	negSale, negResult, err := workflow.SaveSale(ctx, &workflow.SaleRequest{
		OrganizationId:  fx.org.ID,
		TradingPointId:  fx.tradingPoint.ID,
		Status:          models.SaleStatusCompleted,
		PaymentMethodId: &fx.paymentMethod.ID,
		Items: []workflow.SaleItemRequest{
			{NomenclatureId: fx.rose.ID, Quantity: decimal.NewFromInt(8), UnitPrice: decimal.NewFromInt(5)},
		},
	})
	if err != nil {
		t.Fatalf("negative-stock SaveSale: %v", err)
	}
	if len(negResult.Warnings) != 1 {
		t.Fatalf("warnings = %v, want one shortage warning", negResult.Warnings)
	}
	movements, _ = models.FetchSaleMovements(db, ctx, negSale.ID)
	var shortage *models.StockMovement
	for _, m := range movements {
		if m.IsShortage {
			shortage = m
		}
	}
	if shortage == nil || !shortage.Quantity.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("expected shortage movement of 2, got %+v", movements)
	}
	qty, _ = models.GetStockBalanceQuantity(db, ctx, fx.org.ID, fx.warehouse.ID, fx.rose.ID)
	if !qty.Equal(decimal.NewFromInt(-2)) {
		t.Fatalf("stock balance after shortage sale = %s, want -2", qty)
	}

	// close the shift: expected = 100 + 20 + 40 = 160, counted 158.
	// Two tills racing to close must produce exactly one close.
	closeErrs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := workflow.CloseShift(ctx, &workflow.CloseShiftRequest{
				OrganizationId: fx.org.ID,
				ShiftId:        shift.ID,
				ActualBalance:  decimal.NewFromInt(158),
			})
			closeErrs <- err
		}()
	}
	var refusals int
	for i := 0; i < 2; i++ {
		if err := <-closeErrs; err != nil {
			var alreadyClosed *models.ShiftAlreadyClosedError
			if !errors.As(err, &alreadyClosed) {
				t.Fatalf("CloseShift: %v", err)
			}
			refusals++
		}
	}
	if refusals != 1 {
		t.Fatalf("concurrent closes refused %d times, want 1", refusals)
	}
	var closed models.CashShift
	if err := db.WithContext(ctx).First(&closed, "id = ?", shift.ID).Error; err != nil {
		t.Fatalf("reload shift: %v", err)
	}
	if closed.Status != models.ShiftStatusClosed || closed.OpenKey != nil {
		t.Fatalf("shift not fully closed: %+v", closed)
	}
	if !closed.Expected.Equal(decimal.NewFromInt(160)) {
		t.Fatalf("expected = %s, want 160", closed.Expected)
	}
	if !closed.Discrepancy.Equal(decimal.NewFromInt(-2)) {
		t.Fatalf("discrepancy = %s, want -2", closed.Discrepancy)
	}

	// closing twice must refuse
	if _, err := workflow.CloseShift(ctx, &workflow.CloseShiftRequest{
		OrganizationId: fx.org.ID,
		ShiftId:        shift.ID,
		ActualBalance:  decimal.NewFromInt(158),
	}); err == nil {
		t.Fatalf("second CloseShift succeeded, want ShiftAlreadyClosedError")
	}
}

func TestOrderCheckoutProducesSingleSale(t *testing.T) {
	ctx := setupIntegration(t)
	fx := seedFixture(t, ctx)
	db := config.GetDB()

	_, err := workflow.ProcessReceipt(ctx, &workflow.ReceiptRequest{
		OrganizationId: fx.org.ID,
		WarehouseId:    fx.warehouse.ID,
		NomenclatureId: fx.rose.ID,
		Quantity:       decimal.NewFromInt(10),
		PurchasePrice:  decimal.RequireFromString("2.00"),
		ArrivalDate:    time.Now(),
	})
	if err != nil {
		t.Fatalf("ProcessReceipt: %v", err)
	}

	order := models.Order{
		ID:             uuid.NewString(),
		OrganizationId: fx.org.ID,
		TradingPointId: fx.tradingPoint.ID,
		Number:         1,
		Status:         models.OrderStatusNew,
		CustomerId:     &fx.customer.ID,
		Items: []models.OrderItem{
			{ID: uuid.NewString(), NomenclatureId: fx.rose.ID, Quantity: decimal.NewFromInt(3), UnitPrice: decimal.NewFromInt(5)},
		},
	}
	order.Items[0].OrderId = order.ID
	if err := db.WithContext(ctx).Create(&order).Error; err != nil {
		t.Fatalf("create order: %v", err)
	}

	// checkout from new is not allowed
	if _, _, err := workflow.CheckoutOrder(ctx, &workflow.CheckoutRequest{
		OrganizationId:  fx.org.ID,
		OrderId:         order.ID,
		PaymentMethodId: &fx.paymentMethod.ID,
	}); err == nil {
		t.Fatalf("checkout from new succeeded, want InvalidTransitionError")
	}

	// walk the workflow to assembled
	steps := []models.OrderStatus{
		models.OrderStatusConfirmed, models.OrderStatusInAssembly, models.OrderStatusAssembled,
	}
	for _, step := range steps {
		err := db.Transaction(func(tx *gorm.DB) error {
			return order.TransitionTo(tx, ctx, step, "Test", "")
		})
		if err != nil {
			t.Fatalf("transition to %s: %v", step, err)
		}
	}

	sale, _, err := workflow.CheckoutOrder(ctx, &workflow.CheckoutRequest{
		OrganizationId:  fx.org.ID,
		OrderId:         order.ID,
		PaymentMethodId: &fx.paymentMethod.ID,
	})
	if err != nil {
		t.Fatalf("CheckoutOrder: %v", err)
	}
	if sale.OrderId == nil || *sale.OrderId != order.ID {
		t.Fatalf("sale not linked to order")
	}

	var reloaded models.Order
	if err := db.WithContext(ctx).First(&reloaded, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if reloaded.Status != models.OrderStatusCompleted {
		t.Fatalf("order status = %s, want completed", reloaded.Status)
	}

	var historyCount int64
	if err := db.WithContext(ctx).Model(&models.OrderStatusHistory{}).Where("order_id = ?", order.ID).Count(&historyCount).Error; err != nil {
		t.Fatalf("count history: %v", err)
	}
	if historyCount != 4 {
		t.Fatalf("history rows = %d, want 4", historyCount)
	}

	// an order may produce at most one sale
	if _, _, err := workflow.CheckoutOrder(ctx, &workflow.CheckoutRequest{
		OrganizationId:  fx.org.ID,
		OrderId:         order.ID,
		PaymentMethodId: &fx.paymentMethod.ID,
	}); err == nil {
		t.Fatalf("second checkout succeeded, want refusal")
	}

	// the unique index backs the invariant even when the pre-check is bypassed
	if _, _, err := workflow.SaveSale(ctx, &workflow.SaleRequest{
		OrganizationId: fx.org.ID,
		TradingPointId: fx.tradingPoint.ID,
		Status:         models.SaleStatusOpen,
		OrderId:        &order.ID,
		Items: []workflow.SaleItemRequest{
			{NomenclatureId: fx.rose.ID, Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(5)},
		},
	}); err == nil {
		t.Fatalf("second sale for the same order succeeded, want duplicate key refusal")
	}

	// re-linking a sale to another order through update must stick
	order2 := models.Order{
		ID:             uuid.NewString(),
		OrganizationId: fx.org.ID,
		TradingPointId: fx.tradingPoint.ID,
		Number:         2,
		Status:         models.OrderStatusNew,
	}
	if err := db.WithContext(ctx).Create(&order2).Error; err != nil {
		t.Fatalf("create second order: %v", err)
	}
	plain, _, err := workflow.SaveSale(ctx, &workflow.SaleRequest{
		OrganizationId: fx.org.ID,
		TradingPointId: fx.tradingPoint.ID,
		Status:         models.SaleStatusOpen,
		Items: []workflow.SaleItemRequest{
			{NomenclatureId: fx.rose.ID, Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(5)},
		},
	})
	if err != nil {
		t.Fatalf("SaveSale: %v", err)
	}
	if _, _, err := workflow.UpdateSale(ctx, plain.ID, &workflow.SaleRequest{
		OrganizationId: fx.org.ID,
		TradingPointId: fx.tradingPoint.ID,
		Status:         models.SaleStatusOpen,
		OrderId:        &order2.ID,
		Items: []workflow.SaleItemRequest{
			{NomenclatureId: fx.rose.ID, Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(5)},
		},
	}); err != nil {
		t.Fatalf("re-link UpdateSale: %v", err)
	}
	var relinked models.Sale
	if err := db.WithContext(ctx).First(&relinked, "id = ?", plain.ID).Error; err != nil {
		t.Fatalf("reload sale: %v", err)
	}
	if relinked.OrderId == nil || *relinked.OrderId != order2.ID {
		t.Fatalf("sale order link = %v, want %s", relinked.OrderId, order2.ID)
	}
}

func TestBouquetAssemblyAndDisassembly(t *testing.T) {
	ctx := setupIntegration(t)
	fx := seedFixture(t, ctx)
	db := config.GetDB()

	tulip := models.Nomenclature{
		ID:             uuid.NewString(),
		OrganizationId: fx.org.ID,
		Name:           "Tulip",
		Type:           models.NomenclatureTypeProduct,
	}
	ribbon := models.Nomenclature{
		ID:             uuid.NewString(),
		OrganizationId: fx.org.ID,
		Name:           "Gift Wrapping",
		Type:           models.NomenclatureTypeService,
	}
	bouquet := models.Nomenclature{
		ID:             uuid.NewString(),
		OrganizationId: fx.org.ID,
		Name:           "Spring Mix",
		Type:           models.NomenclatureTypeBouquet,
	}
	for _, nom := range []*models.Nomenclature{&tulip, &ribbon, &bouquet} {
		if err := db.WithContext(ctx).Create(nom).Error; err != nil {
			t.Fatalf("create nomenclature: %v", err)
		}
	}

	receive := func(nomId string, qty int64, price string) {
		t.Helper()
		_, err := workflow.ProcessReceipt(ctx, &workflow.ReceiptRequest{
			OrganizationId: fx.org.ID,
			WarehouseId:    fx.warehouse.ID,
			NomenclatureId: nomId,
			Quantity:       decimal.NewFromInt(qty),
			PurchasePrice:  decimal.RequireFromString(price),
			ArrivalDate:    time.Now(),
		})
		if err != nil {
			t.Fatalf("ProcessReceipt: %v", err)
		}
	}
	receive(tulip.ID, 10, "1.50")
	receive(fx.rose.ID, 10, "2.00")

	// 2 bouquets of 3 tulips + 2 roses each; the service line must not
	// consume stock or contribute cost
	finished, err := workflow.AssembleBouquet(ctx, &workflow.AssembleRequest{
		OrganizationId: fx.org.ID,
		WarehouseId:    fx.warehouse.ID,
		BouquetId:      bouquet.ID,
		Count:          decimal.NewFromInt(2),
		Components: []workflow.AssembleComponent{
			{NomenclatureId: tulip.ID, Quantity: decimal.NewFromInt(3)},
			{NomenclatureId: fx.rose.ID, Quantity: decimal.NewFromInt(2)},
			{NomenclatureId: ribbon.ID, Quantity: decimal.NewFromInt(1)},
		},
	})
	if err != nil {
		t.Fatalf("AssembleBouquet: %v", err)
	}
	// (6 * 1.50 + 4 * 2.00) / 2
	if !finished.PurchasePrice.Equal(decimal.RequireFromString("8.50")) {
		t.Fatalf("finished unit cost = %s, want 8.50", finished.PurchasePrice)
	}
	if !finished.Remaining.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("finished remaining = %s, want 2", finished.Remaining)
	}

	check := func(nomId string, want int64) {
		t.Helper()
		qty, err := models.GetStockBalanceQuantity(db, ctx, fx.org.ID, fx.warehouse.ID, nomId)
		if err != nil {
			t.Fatalf("GetStockBalanceQuantity: %v", err)
		}
		if !qty.Equal(decimal.NewFromInt(want)) {
			t.Fatalf("balance = %s, want %d", qty, want)
		}
	}
	check(tulip.ID, 4)
	check(fx.rose.ID, 6)
	check(bouquet.ID, 2)

	// tear one down: two tulips come back, one rose is damaged
	err = workflow.DisassembleBouquet(ctx, &workflow.DisassembleRequest{
		OrganizationId: fx.org.ID,
		WarehouseId:    fx.warehouse.ID,
		BouquetId:      bouquet.ID,
		Rows: []workflow.DisassemblyRow{
			{NomenclatureId: tulip.ID, Quantity: decimal.NewFromInt(2), Action: workflow.DisassemblyActionReturn},
			{NomenclatureId: fx.rose.ID, Quantity: decimal.NewFromInt(1), Action: workflow.DisassemblyActionWriteOff, Reason: models.WriteOffReasonDamaged},
		},
	})
	if err != nil {
		t.Fatalf("DisassembleBouquet: %v", err)
	}
	check(tulip.ID, 6)
	check(fx.rose.ID, 5)
	check(bouquet.ID, 1)

	// assembling more than the components cover must fail whole
	_, err = workflow.AssembleBouquet(ctx, &workflow.AssembleRequest{
		OrganizationId: fx.org.ID,
		WarehouseId:    fx.warehouse.ID,
		BouquetId:      bouquet.ID,
		Count:          decimal.NewFromInt(100),
		Components: []workflow.AssembleComponent{
			{NomenclatureId: tulip.ID, Quantity: decimal.NewFromInt(3)},
		},
	})
	var insufficient *workflow.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("oversized assembly error = %v, want InsufficientStockError", err)
	}
	check(tulip.ID, 6)
}

func TestTransferAndBouquetCorrection(t *testing.T) {
	ctx := setupIntegration(t)
	fx := seedFixture(t, ctx)
	db := config.GetDB()

	receive := func(nomId string, qty int64, price string) {
		t.Helper()
		_, err := workflow.ProcessReceipt(ctx, &workflow.ReceiptRequest{
			OrganizationId: fx.org.ID,
			WarehouseId:    fx.warehouse.ID,
			NomenclatureId: nomId,
			Quantity:       decimal.NewFromInt(qty),
			PurchasePrice:  decimal.RequireFromString(price),
			ArrivalDate:    time.Now(),
		})
		if err != nil {
			t.Fatalf("ProcessReceipt: %v", err)
		}
	}
	check := func(warehouseId, nomId string, want string) {
		t.Helper()
		qty, err := models.GetStockBalanceQuantity(db, ctx, fx.org.ID, warehouseId, nomId)
		if err != nil {
			t.Fatalf("GetStockBalanceQuantity: %v", err)
		}
		if !qty.Equal(decimal.RequireFromString(want)) {
			t.Fatalf("balance = %s, want %s", qty, want)
		}
	}

	// two batches at different costs, then move 8 across both of them
	receive(fx.rose.ID, 6, "2.00")
	receive(fx.rose.ID, 4, "3.50")
	err := workflow.ProcessTransfer(ctx, &workflow.TransferRequest{
		OrganizationId:  fx.org.ID,
		WarehouseFromId: fx.warehouse.ID,
		WarehouseToId:   fx.spare.ID,
		NomenclatureId:  fx.rose.ID,
		Quantity:        decimal.NewFromInt(8),
	})
	if err != nil {
		t.Fatalf("ProcessTransfer: %v", err)
	}
	check(fx.warehouse.ID, fx.rose.ID, "2")
	check(fx.spare.ID, fx.rose.ID, "8")

	// destination batch carries the weighted draw cost: (6*2.00 + 2*3.50) / 8
	var destBatch models.Batch
	err = db.WithContext(ctx).
		Where("warehouse_id = ? AND nomenclature_id = ?", fx.spare.ID, fx.rose.ID).
		First(&destBatch).Error
	if err != nil {
		t.Fatalf("load destination batch: %v", err)
	}
	if !destBatch.PurchasePrice.Equal(decimal.RequireFromString("2.375")) {
		t.Fatalf("destination cost = %s, want 2.375", destBatch.PurchasePrice)
	}
	if !destBatch.Remaining.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("destination remaining = %s, want 8", destBatch.Remaining)
	}

	tulip := models.Nomenclature{
		ID:             uuid.NewString(),
		OrganizationId: fx.org.ID,
		Name:           "Tulip",
		Type:           models.NomenclatureTypeProduct,
	}
	lily := models.Nomenclature{
		ID:             uuid.NewString(),
		OrganizationId: fx.org.ID,
		Name:           "Lily",
		Type:           models.NomenclatureTypeProduct,
	}
	bouquet := models.Nomenclature{
		ID:             uuid.NewString(),
		OrganizationId: fx.org.ID,
		Name:           "Spring Mix",
		Type:           models.NomenclatureTypeBouquet,
	}
	for _, nom := range []*models.Nomenclature{&tulip, &lily, &bouquet} {
		if err := db.WithContext(ctx).Create(nom).Error; err != nil {
			t.Fatalf("create nomenclature: %v", err)
		}
	}
	receive(tulip.ID, 10, "1.50")

	finished, err := workflow.AssembleBouquet(ctx, &workflow.AssembleRequest{
		OrganizationId: fx.org.ID,
		WarehouseId:    fx.warehouse.ID,
		BouquetId:      bouquet.ID,
		Count:          decimal.NewFromInt(1),
		Components: []workflow.AssembleComponent{
			{NomenclatureId: tulip.ID, Quantity: decimal.NewFromInt(2)},
		},
	})
	if err != nil {
		t.Fatalf("AssembleBouquet: %v", err)
	}
	if !finished.PurchasePrice.Equal(decimal.RequireFromString("3.00")) {
		t.Fatalf("finished unit cost = %s, want 3.00", finished.PurchasePrice)
	}

	// correction consumes one more tulip and writes off a lily that was never
	// on the books; the corrected unit keeps its original cost
	err = workflow.CorrectBouquet(ctx, &workflow.CorrectBouquetRequest{
		OrganizationId: fx.org.ID,
		WarehouseId:    fx.warehouse.ID,
		BouquetId:      bouquet.ID,
		Rows: []workflow.DisassemblyRow{
			{NomenclatureId: tulip.ID, Quantity: decimal.NewFromInt(1), Action: workflow.DisassemblyActionAdd},
			{NomenclatureId: lily.ID, Quantity: decimal.NewFromInt(1), Action: workflow.DisassemblyActionWriteOff, Reason: models.WriteOffReasonDamaged},
		},
	})
	if err != nil {
		t.Fatalf("CorrectBouquet: %v", err)
	}
	check(fx.warehouse.ID, tulip.ID, "7")
	check(fx.warehouse.ID, bouquet.ID, "1")
	check(fx.warehouse.ID, lily.ID, "-1")

	var corrected models.Batch
	err = db.WithContext(ctx).
		Where("warehouse_id = ? AND nomenclature_id = ? AND remaining > 0", fx.warehouse.ID, bouquet.ID).
		First(&corrected).Error
	if err != nil {
		t.Fatalf("load corrected batch: %v", err)
	}
	if !corrected.PurchasePrice.Equal(decimal.RequireFromString("3.00")) {
		t.Fatalf("corrected cost = %s, want 3.00", corrected.PurchasePrice)
	}

	// the lily write-off is recorded without a batch link
	var lilyMovements []*models.StockMovement
	err = db.WithContext(ctx).
		Where("nomenclature_id = ? AND type = ?", lily.ID, models.MovementTypeWriteOff).
		Find(&lilyMovements).Error
	if err != nil {
		t.Fatalf("load lily movements: %v", err)
	}
	if len(lilyMovements) != 1 || lilyMovements[0].BatchId != nil {
		t.Fatalf("lily write-off movements = %+v, want one batchless row", lilyMovements)
	}
}

/* docker helpers */

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("flora-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("flora-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=flora_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
