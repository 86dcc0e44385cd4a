package dataservice

import (
	"context"
	"fmt"

	"github.com/xelth-com/eckwmsfield/internal/models"
)

// Services bundles the data service of every kind.
type Services struct {
	Suppliers *Service[models.Supplier, *models.Supplier]
	Customers *Service[models.Customer, *models.Customer]
	Vehicles  *Service[models.Vehicle, *models.Vehicle]
	Products  *Service[models.Product, *models.Product]
	Stock     *Service[models.StockLevel, *models.StockLevel]
	Shipments *Service[models.Shipment, *models.Shipment]
}

func New(d Deps) *Services {
	return &Services{
		Suppliers: NewService[models.Supplier](d),
		Customers: NewService[models.Customer](d),
		Vehicles:  NewService[models.Vehicle](d),
		Products:  NewService[models.Product](d),
		Stock:     NewService[models.StockLevel](d),
		Shipments: NewService[models.Shipment](d),
	}
}

// Summary is a kind-agnostic view of a local record.
type Summary struct {
	ID      models.ID
	Label   string
	Deleted bool
	Pending bool
	Record  models.SyncableEntity
}

// ListAny returns the active local records of kind.
func (s *Services) ListAny(ctx context.Context, kind models.Kind) ([]Summary, error) {
	switch kind {
	case models.KindSuppliers:
		return summarize(s.Suppliers.List(ctx))
	case models.KindCustomers:
		return summarize(s.Customers.List(ctx))
	case models.KindVehicles:
		return summarize(s.Vehicles.List(ctx))
	case models.KindProducts:
		return summarize(s.Products.List(ctx))
	case models.KindStock:
		return summarize(s.Stock.List(ctx))
	case models.KindShipments:
		return summarize(s.Shipments.List(ctx))
	}
	return nil, fmt.Errorf("unknown entity kind %q", kind)
}

// DeleteAny deletes a record of kind by id.
func (s *Services) DeleteAny(ctx context.Context, kind models.Kind, id models.ID) error {
	switch kind {
	case models.KindSuppliers:
		return s.Suppliers.Delete(ctx, id)
	case models.KindCustomers:
		return s.Customers.Delete(ctx, id)
	case models.KindVehicles:
		return s.Vehicles.Delete(ctx, id)
	case models.KindProducts:
		return s.Products.Delete(ctx, id)
	case models.KindStock:
		return s.Stock.Delete(ctx, id)
	case models.KindShipments:
		return s.Shipments.Delete(ctx, id)
	}
	return fmt.Errorf("unknown entity kind %q", kind)
}

func summarize[P models.SyncableEntity](recs []P, err error) ([]Summary, error) {
	if err != nil {
		return nil, err
	}
	out := make([]Summary, len(recs))
	for i, r := range recs {
		out[i] = Summary{ID: r.Key(), Deleted: r.IsDeleted(), Pending: r.IsPending(), Record: r}
		if l, ok := any(r).(interface{ Label() string }); ok {
			out[i].Label = l.Label()
		}
	}
	return out, nil
}
