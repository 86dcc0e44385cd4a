package dataservice

import (
	"context"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xelth-com/eckwmsfield/internal/config"
	"github.com/xelth-com/eckwmsfield/internal/database"
	"github.com/xelth-com/eckwmsfield/internal/events"
	"github.com/xelth-com/eckwmsfield/internal/models"
	"github.com/xelth-com/eckwmsfield/internal/remote"
	"github.com/xelth-com/eckwmsfield/internal/testserver"
)

type flag struct{ v atomic.Bool }

func (f *flag) IsConnected() bool                    { return f.v.Load() }
func (f *flag) IsAuthenticated(context.Context) bool { return f.v.Load() }

type fixture struct {
	srv    *testserver.Server
	db     *database.DB
	online *flag
	bus    *events.Bus
	svc    *Services
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := testserver.New()
	ts := srv.Start()
	t.Cleanup(ts.Close)

	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "f.db")}, nil)
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	token := srv.IssueToken()
	client := remote.New(ts.URL, 5*time.Second, remote.TokenFunc(func() (string, bool) { return token, true }), nil)

	online := &flag{}
	online.v.Store(true)
	bus := events.NewBus()
	return &fixture{
		srv:    srv,
		db:     db,
		online: online,
		bus:    bus,
		svc:    New(Deps{DB: db, Client: client, Conn: online, Auth: online, Bus: bus}),
	}
}

func TestCreate_OnlineMirrorsServerRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ch, unsub := f.bus.Subscribe()
	defer unsub()

	created, err := f.svc.Suppliers.Create(ctx, &models.Supplier{Partner: models.Partner{Name: "Acme"}})
	require.NoError(t, err)
	require.True(t, created.ID.IsRemote())

	local, err := f.svc.Suppliers.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Acme", local.Name)
	require.False(t, local.Pending)

	require.Len(t, testserver.Records[models.Supplier](f.srv, models.KindSuppliers), 1)

	e := <-ch
	require.Equal(t, events.DataChanged, e.Type)
	require.Equal(t, models.KindSuppliers, e.Payload)
}

func TestCreate_OfflineAssignsProvisionalID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.online.v.Store(false)

	created, err := f.svc.Customers.Create(ctx, &models.Customer{Partner: models.Partner{Name: "Initech"}})
	require.NoError(t, err)
	require.True(t, created.ID.IsLocal())

	list, err := f.svc.Customers.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Zero(t, f.srv.Calls(models.KindCustomers, http.MethodPost))
}

func TestCreate_RemoteFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.srv.FailNext(models.KindProducts, http.MethodPost, http.StatusBadGateway)

	created, err := f.svc.Products.Create(ctx, &models.Product{Name: "Widget"})
	require.NoError(t, err)
	require.True(t, created.ID.IsLocal())
}

func TestCreate_ProvisionalReferenceStaysLocal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.online.v.Store(false)
	sup, err := f.svc.Suppliers.Create(ctx, &models.Supplier{Partner: models.Partner{Name: "offline"}})
	require.NoError(t, err)

	f.online.v.Store(true)
	prod, err := f.svc.Products.Create(ctx, &models.Product{Name: "Widget", SupplierID: sup.ID})
	require.NoError(t, err)
	require.True(t, prod.ID.IsLocal())
	require.Zero(t, f.srv.Calls(models.KindProducts, http.MethodPost))
}

func TestUpdate_OfflineMarksPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.svc.Suppliers.Create(ctx, &models.Supplier{Partner: models.Partner{Name: "Acme"}})
	require.NoError(t, err)

	f.online.v.Store(false)
	created.City = "Leipzig"
	require.NoError(t, f.svc.Suppliers.Update(ctx, created))

	local, err := f.svc.Suppliers.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Leipzig", local.City)
	require.True(t, local.Pending)

	f.online.v.Store(true)
	local.City = "Dresden"
	require.NoError(t, f.svc.Suppliers.Update(ctx, local))
	local, err = f.svc.Suppliers.Get(ctx, created.ID)
	require.NoError(t, err)
	require.False(t, local.Pending)
	require.Equal(t, "Dresden", testserver.Records[models.Supplier](f.srv, models.KindSuppliers)[0].City)
}

func TestUpdate_DeletedRecordIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.svc.Suppliers.Create(ctx, &models.Supplier{Partner: models.Partner{Name: "Acme"}})
	require.NoError(t, err)

	f.online.v.Store(false)
	require.NoError(t, f.svc.Suppliers.Delete(ctx, created.ID))

	err = f.svc.Suppliers.Update(ctx, &models.Supplier{Record: models.Record{ID: created.ID}, Partner: models.Partner{Name: "Acme GmbH"}})
	require.ErrorIs(t, err, ErrDeleted)

	local, err := f.svc.Suppliers.Get(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, local.Deleted)
	require.NotNil(t, local.DeletedAt)
	require.True(t, local.Pending)
	require.Equal(t, "Acme", local.Name)
}

func TestUpdate_CannotDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.online.v.Store(false)

	created, err := f.svc.Customers.Create(ctx, &models.Customer{Partner: models.Partner{Name: "Initech"}})
	require.NoError(t, err)

	created.Deleted = true
	require.NoError(t, f.svc.Customers.Update(ctx, created))

	local, err := f.svc.Customers.Get(ctx, created.ID)
	require.NoError(t, err)
	require.False(t, local.Deleted)
	require.Nil(t, local.DeletedAt)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	online, err := f.svc.Customers.Create(ctx, &models.Customer{Partner: models.Partner{Name: "one"}})
	require.NoError(t, err)
	offline, err := f.svc.Customers.Create(ctx, &models.Customer{Partner: models.Partner{Name: "two"}})
	require.NoError(t, err)

	require.NoError(t, f.svc.Customers.Delete(ctx, online.ID))
	got, err := f.svc.Customers.Get(ctx, online.ID)
	require.NoError(t, err)
	require.True(t, got.Deleted)
	require.False(t, got.Pending)

	f.online.v.Store(false)
	require.NoError(t, f.svc.Customers.Delete(ctx, offline.ID))
	got, err = f.svc.Customers.Get(ctx, offline.ID)
	require.NoError(t, err)
	require.True(t, got.Deleted)
	require.True(t, got.Pending)

	server := testserver.Records[models.Customer](f.srv, models.KindCustomers)
	require.True(t, server[0].Deleted)
	require.False(t, server[1].Deleted)

	require.ErrorIs(t, f.svc.Customers.Delete(ctx, models.RemoteID(999)), database.ErrRecordNotFound)
}

func TestReadOnlyKinds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Vehicles.Create(ctx, &models.Vehicle{Plate: "B-XY 1"})
	require.ErrorIs(t, err, ErrReadOnly)
	require.ErrorIs(t, f.svc.Stock.Update(ctx, &models.StockLevel{Record: models.Record{ID: models.RemoteID(1)}}), ErrReadOnly)
	require.ErrorIs(t, f.svc.DeleteAny(ctx, models.KindVehicles, models.RemoteID(1)), ErrReadOnly)
}

func TestListAny(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.online.v.Store(false)

	_, err := f.svc.Shipments.Create(ctx, &models.Shipment{Reference: "OUT/7"})
	require.NoError(t, err)

	rows, err := f.svc.ListAny(ctx, models.KindShipments)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.True(t, rows[0].ID.IsLocal())
	require.Equal(t, "OUT/7 (draft)", rows[0].Label)

	_, err = f.svc.ListAny(ctx, models.Kind("orders"))
	require.Error(t, err)
}
