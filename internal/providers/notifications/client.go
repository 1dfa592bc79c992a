package notifications

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"correspondence/internal/domain"
	"correspondence/internal/providers/transport"
)

type Recipient struct {
	OrganizationNumber     string `json:"organizationNumber,omitempty"`
	NationalIdentityNumber string `json:"nationalIdentityNumber,omitempty"`
	EmailAddress           string `json:"emailAddress,omitempty"`
	MobileNumber           string `json:"mobileNumber,omitempty"`
}

type OrderRequest struct {
	IdempotencyID     string    `json:"idempotencyId"`
	SendersReference  string    `json:"sendersReference,omitempty"`
	RequestedSendTime time.Time `json:"requestedSendTime"`
	ResourceID        string    `json:"resourceId,omitempty"`
	Channel           string    `json:"channelSchema"`
	Recipient         Recipient `json:"recipient"`
	IgnoreReservation bool      `json:"ignoreReservation"`
	EmailSubject      string    `json:"emailSubject,omitempty"`
	EmailBody         string    `json:"emailBody,omitempty"`
	SmsBody           string    `json:"smsBody,omitempty"`
	// Evaluated by the notification service at send time; a reminder is
	// dropped once the correspondence has been read.
	ConditionEndpoint string `json:"conditionEndpoint,omitempty"`
}

type OrderResponse struct {
	OrderID    string `json:"notificationOrderId"`
	ShipmentID string `json:"shipmentId"`
}

const (
	ChannelEmail = "email"
	ChannelSms   = "sms"
)

type RecipientStatus struct {
	Channel     string    `json:"type"`
	Destination string    `json:"destination"`
	Status      string    `json:"status"`
	LastUpdate  time.Time `json:"lastUpdate"`
}

// Sent reports whether the provider accepted or delivered the message.
func (r RecipientStatus) Sent() bool {
	switch r.Channel {
	case ChannelSms:
		return r.Status == "SMS_Accepted" || r.Status == "SMS_Delivered"
	case ChannelEmail:
		return r.Status == "Email_Succeeded" || r.Status == "Email_Delivered"
	}
	return false
}

type ShipmentStatus struct {
	ShipmentID string            `json:"shipmentId"`
	Status     string            `json:"status"`
	Recipients []RecipientStatus `json:"recipients"`
}

type Client struct {
	HTTP *transport.Client
}

func New(c *transport.Client) *Client { return &Client{HTTP: c} }

func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (OrderResponse, error) {
	var out OrderResponse
	if err := c.HTTP.Do(ctx, http.MethodPost, "/notifications/api/v1/future/orders", req, &out); err != nil {
		return OrderResponse{}, err
	}
	return out, nil
}

func (c *Client) GetDeliveryStatus(ctx context.Context, shipmentID string) (ShipmentStatus, error) {
	var out ShipmentStatus
	err := c.HTTP.Do(ctx, http.MethodGet, "/notifications/api/v1/future/shipment/"+url.PathEscape(shipmentID), nil, &out)
	if transport.IsStatus(err, http.StatusNotFound) {
		return ShipmentStatus{}, fmt.Errorf("shipment %s: %w", shipmentID, domain.ErrNotFound)
	}
	return out, err
}
