// Package models содержит доменные структуры биллинга: описание товара
// в каталоге коммерческого провайдера и запись о совершённой покупке.
package models

import (
	"strings"
	"time"
)

// ProductKind тип товара в каталоге провайдера.
type ProductKind string

const (
	// KindInApp разовая покупка.
	KindInApp ProductKind = "inapp"
	// KindSubscription подписка с периодическим списанием.
	KindSubscription ProductKind = "subs"
)

// ProductDescriptor описывает один товар каталога.
// Поля TrialPeriod и BillingPeriod заполняются только для подписок
// и содержат период в формате ISO-8601, например "P7D" или "P1M".
type ProductDescriptor struct {
	ID            string      `json:"product_id" validate:"required"`
	Kind          ProductKind `json:"kind" validate:"required,oneof=inapp subs"`
	Price         string      `json:"price"`
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	TrialPeriod   string      `json:"trial_period,omitempty"`
	BillingPeriod string      `json:"billing_period,omitempty"`
}

// PurchaseRecord запись об одной завершённой транзакции.
// ProductID — слабая ссылка на товар каталога: разрешение права доступа
// обязано переживать отсутствие дескриптора. Token уникален в пределах
// активного набора покупок и используется для поиска и удаления.
// Signature непрозрачная строка; мок-провайдер кодирует в её суффиксе
// тип товара, криптографического смысла она не несёт.
type PurchaseRecord struct {
	ProductID      string    `json:"product_id"`
	PurchaseTime   time.Time `json:"purchase_time"`
	Token          string    `json:"token"`
	IsAutoRenewing bool      `json:"is_auto_renewing"`
	Signature      string    `json:"signature"`
}

// MatchesKind сообщает, относится ли покупка к данному типу товара.
// Тип закодирован суффиксом поля Signature.
func (p PurchaseRecord) MatchesKind(kind ProductKind) bool {
	return strings.HasSuffix(p.Signature, string(kind))
}
