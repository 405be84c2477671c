package service

import (
	"go.uber.org/zap"

	"restaurant-orders/internal/intake"
	"restaurant-orders/internal/microservices/order/repository"
)

type Service struct {
	Store        *Store
	OrderService OrderServiceInterface
}

func New(repo *repository.Repository, queue intake.Queue, changes ChangePublisher, skipSettlement bool, lg *zap.Logger) *Service {
	store := NewStore(repo.OrderRepo, changes, lg)
	return &Service{
		Store:        store,
		OrderService: NewOrderService(store, queue, skipSettlement, lg),
	}
}
