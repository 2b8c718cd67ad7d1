package domain

import "time"

// TimelineEvent описывает одну запись в истории жизненного цикла заказа.
// Историю читает витрина «мои заказы»; сага только дописывает записи.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Status   OrderStatus
	Reason   string
	Occurred time.Time
}
