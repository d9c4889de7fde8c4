// Package codec converts orders to and from the JSON message wire format.
//
// Encoding is deterministic: fields are always written in the same order and
// monetary amounts keep their exact decimal text. Decoding is strict and
// re-validates every order invariant, so a decoded order is always consistent.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"orderbus-go/internal/apperr"
	"orderbus-go/internal/domain"
	"orderbus-go/internal/queue"
)

// ErrMalformedPayload is returned for any body that does not decode to a valid order.
var ErrMalformedPayload = apperr.ErrMalformedPayload

// Application property names set by EncodeMessage.
const (
	PropertyCustomer  = "customer"
	PropertyItemCount = "itemCount"
)

// wireOrder is the body layout. Field order defines the encoded field order.
type wireOrder struct {
	ID              string      `json:"id"`
	CustomerName    string      `json:"customerName"`
	Items           []wireItem  `json:"items"`
	TotalPrice      json.Number `json:"totalPrice"`
	DiscountApplied json.Number `json:"discountApplied"`
	FinalPrice      json.Number `json:"finalPrice"`
	ProcessedAt     string      `json:"processedAt,omitempty"`
}

type wireItem struct {
	ProductName string      `json:"productName"`
	Quantity    int         `json:"quantity"`
	UnitPrice   json.Number `json:"unitPrice"`
}

// incomingOrder mirrors wireOrder with pointers so missing fields are detectable.
type incomingOrder struct {
	ID              *string         `json:"id"`
	CustomerName    *string         `json:"customerName"`
	Items           *[]incomingItem `json:"items"`
	TotalPrice      *json.Number    `json:"totalPrice"`
	DiscountApplied *json.Number    `json:"discountApplied"`
	FinalPrice      *json.Number    `json:"finalPrice"`
	ProcessedAt     *string         `json:"processedAt"`
}

type incomingItem struct {
	ProductName *string      `json:"productName"`
	Quantity    *json.Number `json:"quantity"`
	UnitPrice   *json.Number `json:"unitPrice"`
}

// Encode serializes an order into its JSON body.
func Encode(order domain.Order) ([]byte, error) {
	if order.ID() == uuid.Nil {
		return nil, domain.ErrMissingOrderID
	}

	w := wireOrder{
		ID:              order.ID().String(),
		CustomerName:    order.CustomerName(),
		TotalPrice:      json.Number(order.TotalPrice().String()),
		DiscountApplied: json.Number(order.DiscountApplied().String()),
		FinalPrice:      json.Number(order.FinalPrice().String()),
	}

	items := order.Items()
	w.Items = make([]wireItem, len(items))
	for i, item := range items {
		w.Items[i] = wireItem{
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   json.Number(item.UnitPrice.String()),
		}
	}

	if at, ok := order.ProcessedAt(); ok {
		w.ProcessedAt = at.UTC().Format(time.RFC3339Nano)
	}

	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order: %w", err)
	}
	return data, nil
}

// Decode parses a JSON body into an order. Every failure wraps ErrMalformedPayload.
func Decode(data []byte) (domain.Order, error) {
	if !utf8.Valid(data) {
		return domain.Order{}, malformed("body is not valid UTF-8")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()

	var in incomingOrder
	if err := dec.Decode(&in); err != nil {
		return domain.Order{}, malformed("invalid JSON: %v", err)
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return domain.Order{}, malformed("unexpected data after order object")
	}

	snapshot, err := in.snapshot()
	if err != nil {
		return domain.Order{}, err
	}

	order, err := domain.Restore(snapshot)
	if err != nil {
		return domain.Order{}, malformed("%v", err)
	}
	return order, nil
}

func (in incomingOrder) snapshot() (domain.OrderSnapshot, error) {
	var s domain.OrderSnapshot

	switch {
	case in.ID == nil:
		return s, missing("id")
	case in.CustomerName == nil:
		return s, missing("customerName")
	case in.Items == nil:
		return s, missing("items")
	case in.TotalPrice == nil:
		return s, missing("totalPrice")
	case in.DiscountApplied == nil:
		return s, missing("discountApplied")
	case in.FinalPrice == nil:
		return s, missing("finalPrice")
	}

	id, err := uuid.Parse(*in.ID)
	if err != nil {
		return s, malformed("invalid id %q: %v", *in.ID, err)
	}
	s.ID = id
	s.CustomerName = *in.CustomerName

	s.Items = make([]domain.OrderItem, 0, len(*in.Items))
	for i, item := range *in.Items {
		converted, err := item.orderItem(i)
		if err != nil {
			return s, err
		}
		s.Items = append(s.Items, converted)
	}

	if s.TotalPrice, err = parseDecimal("totalPrice", *in.TotalPrice); err != nil {
		return s, err
	}
	if s.DiscountApplied, err = parseDecimal("discountApplied", *in.DiscountApplied); err != nil {
		return s, err
	}
	if s.FinalPrice, err = parseDecimal("finalPrice", *in.FinalPrice); err != nil {
		return s, err
	}

	if in.ProcessedAt != nil {
		at, err := time.Parse(time.RFC3339Nano, *in.ProcessedAt)
		if err != nil {
			return s, malformed("invalid processedAt %q: %v", *in.ProcessedAt, err)
		}
		s.ProcessedAt = &at
	}

	return s, nil
}

func (in incomingItem) orderItem(idx int) (domain.OrderItem, error) {
	field := func(name string) string { return fmt.Sprintf("items[%d].%s", idx, name) }

	switch {
	case in.ProductName == nil:
		return domain.OrderItem{}, missing(field("productName"))
	case in.Quantity == nil:
		return domain.OrderItem{}, missing(field("quantity"))
	case in.UnitPrice == nil:
		return domain.OrderItem{}, missing(field("unitPrice"))
	}

	qty, err := strconv.Atoi(in.Quantity.String())
	if err != nil {
		return domain.OrderItem{}, malformed("%s must be an integer, got %s", field("quantity"), *in.Quantity)
	}
	price, err := parseDecimal(field("unitPrice"), *in.UnitPrice)
	if err != nil {
		return domain.OrderItem{}, err
	}

	return domain.OrderItem{
		ProductName: *in.ProductName,
		Quantity:    qty,
		UnitPrice:   price,
	}, nil
}

// EncodeMessage wraps an encoded order in a queue message.
func EncodeMessage(order domain.Order) (*queue.Message, error) {
	body, err := Encode(order)
	if err != nil {
		return nil, err
	}

	return &queue.Message{
		MessageID:   order.ID().String(),
		ContentType: queue.ContentTypeJSON,
		Subject:     order.Subject(),
		Body:        body,
		ApplicationProperties: map[string]string{
			PropertyCustomer:  order.CustomerName(),
			PropertyItemCount: strconv.Itoa(order.ItemCount()),
		},
	}, nil
}

// DecodeMessage decodes the order carried by msg.
// Messages without a content type are decoded as JSON.
func DecodeMessage(msg *queue.Message) (domain.Order, error) {
	if msg.ContentType != "" {
		mediaType, _, err := mime.ParseMediaType(msg.ContentType)
		if err != nil || mediaType != queue.ContentTypeJSON {
			return domain.Order{}, malformed("unsupported content type %q", msg.ContentType)
		}
	}
	return Decode(msg.Body)
}

func parseDecimal(field string, n json.Number) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Decimal{}, malformed("%s is not a decimal: %s", field, n)
	}
	return d, nil
}

func missing(field string) error {
	return malformed("missing required field %q", field)
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedPayload, fmt.Sprintf(format, args...))
}
