// Package templates renders notification emails. Templates are keyed by the
// same template_id the notification queue stores, so the sender can render
// any queued row without a lookup table of its own.
package templates

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	texttemplate "text/template"

	"encore.app/pkg/errs"
)

// EmailTemplate holds one renderable email
type EmailTemplate struct {
	ID          string
	Subject     string
	HTMLBody    string // inner fragment, wrapped in the shared layout
	TextBody    string
	Description string
}

// TemplateData carries the payload values into the template
type TemplateData map[string]interface{}

const layout = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; background: #f9f9f9; }
        .header { background: #14532d; color: white; padding: 20px; text-align: center; border-radius: 10px 10px 0 0; }
        .content { background: white; padding: 30px; border-radius: 0 0 10px 10px; }
        .footer { text-align: center; margin-top: 30px; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header"><h1>Perchwell</h1></div>
        <div class="content">
            %s
            <div class="footer"><p>&copy; Perchwell Marketplace</p></div>
        </div>
    </div>
</body>
</html>`

var emailTemplates = map[string]*EmailTemplate{
	"welcome": {
		ID:          "welcome",
		Description: "Welcome message after registration",
		Subject:     "Welcome to Perchwell",
		HTMLBody:    `<h2>Hello {{.name}},</h2><p>Your account is ready. Browse listings, follow auctions and place your first bid.</p>`,
		TextBody:    "Hello {{.name}},\n\nYour Perchwell account is ready. Browse listings, follow auctions and place your first bid.",
	},
	"new_bid": {
		ID:          "new_bid",
		Description: "Seller notice that their auction received a bid",
		Subject:     "New bid on your auction",
		HTMLBody:    `<h2>New bid</h2><p>Your auction #{{.auction_id}} received a bid of £{{.amount}}. It now has {{.bids_count}} bids.</p>`,
		TextBody:    "Your auction #{{.auction_id}} received a bid of £{{.amount}}. It now has {{.bids_count}} bids.",
	},
	"outbid": {
		ID:          "outbid",
		Description: "Sent when another bidder overtakes the user's highest bid",
		Subject:     "You have been outbid",
		HTMLBody:    `<h2>You have been outbid</h2><p>Someone placed a higher bid of £{{.new_amount}} on auction #{{.auction_id}}. Bid again before it ends.</p>`,
		TextBody:    "Someone placed a higher bid of £{{.new_amount}} on auction #{{.auction_id}}. Bid again before it ends.",
	},
	"auction_won": {
		ID:          "auction_won",
		Description: "Sent to the winning bidder when an auction ends",
		Subject:     "You won the auction",
		HTMLBody:    `<h2>Congratulations!</h2><p>You won auction #{{.auction_id}} at £{{.final_price}}. Order #{{.order_id}} has been opened for you; complete payment to secure the item.</p>`,
		TextBody:    "You won auction #{{.auction_id}} at £{{.final_price}}. Order #{{.order_id}} has been opened for you; complete payment to secure the item.",
	},
	"auction_ended": {
		ID:          "auction_ended",
		Description: "Sent to the seller when their auction ends",
		Subject:     "Your auction has ended",
		HTMLBody:    `<h2>Auction ended</h2><p>Auction #{{.auction_id}} finished with outcome: {{.outcome}}.</p>`,
		TextBody:    "Auction #{{.auction_id}} finished with outcome: {{.outcome}}.",
	},
	"auction_cancelled": {
		ID:          "auction_cancelled",
		Description: "Sent to bidders when an auction is cancelled",
		Subject:     "Auction cancelled",
		HTMLBody:    `<h2>Auction cancelled</h2><p>Auction #{{.auction_id}} was cancelled. Any bids you placed no longer stand.</p>`,
		TextBody:    "Auction #{{.auction_id}} was cancelled. Any bids you placed no longer stand.",
	},
	"bid_removed": {
		ID:          "bid_removed",
		Description: "Sent to a bidder whose bid was removed by an administrator",
		Subject:     "Your bid was removed",
		HTMLBody:    `<h2>Bid removed</h2><p>Your bid of £{{.amount}} on auction #{{.auction_id}} was removed by a marketplace administrator.</p>`,
		TextBody:    "Your bid of £{{.amount}} on auction #{{.auction_id}} was removed by a marketplace administrator.",
	},
	"listing_reserved": {
		ID:          "listing_reserved",
		Description: "Sent to the seller when a buyer opens an order",
		Subject:     "Your listing has a buyer",
		HTMLBody:    `<h2>Listing reserved</h2><p>A buyer opened order #{{.order_id}} for your listing #{{.listing_id}}. The listing is reserved until payment settles.</p>`,
		TextBody:    "A buyer opened order #{{.order_id}} for your listing #{{.listing_id}}. The listing is reserved until payment settles.",
	},
	"order_paid": {
		ID:          "order_paid",
		Description: "Payment confirmation to the buyer",
		Subject:     "Payment received for your order",
		HTMLBody:    `<h2>Payment received</h2><p>Your payment for order #{{.order_id}} has been confirmed. The seller will ship your item shortly.</p>`,
		TextBody:    "Your payment for order #{{.order_id}} has been confirmed. The seller will ship your item shortly.",
	},
	"payment_received": {
		ID:          "payment_received",
		Description: "Sent to the seller when the buyer's payment settles",
		Subject:     "You have been paid",
		HTMLBody:    `<h2>Payment received</h2><p>The buyer paid £{{.amount}} for order #{{.order_id}}. Please ship the item.</p>`,
		TextBody:    "The buyer paid £{{.amount}} for order #{{.order_id}}. Please ship the item.",
	},
	"payment_failed": {
		ID:          "payment_failed",
		Description: "Sent to the buyer when a payment capture fails",
		Subject:     "Payment failed",
		HTMLBody:    `<h2>Payment failed</h2><p>The payment for order #{{.order_id}} did not go through. The listing has been released; you can try again.</p>`,
		TextBody:    "The payment for order #{{.order_id}} did not go through. The listing has been released; you can try again.",
	},
	"order_refunded": {
		ID:          "order_refunded",
		Description: "Refund confirmation to the buyer",
		Subject:     "Your refund is on its way",
		HTMLBody:    `<h2>Refund issued</h2><p>£{{.amount}} for order #{{.order_id}} has been refunded to your original payment method.</p>`,
		TextBody:    "£{{.amount}} for order #{{.order_id}} has been refunded to your original payment method.",
	},
	"order_shipped": {
		ID:          "order_shipped",
		Description: "Sent to the buyer when the seller marks the order shipped",
		Subject:     "Your order has shipped",
		HTMLBody:    `<h2>On its way</h2><p>Order #{{.order_id}} has been shipped. Confirm delivery once it arrives.</p>`,
		TextBody:    "Order #{{.order_id}} has been shipped. Confirm delivery once it arrives.",
	},
	"order_delivered": {
		ID:          "order_delivered",
		Description: "Sent to the seller when the buyer confirms delivery",
		Subject:     "Order delivered",
		HTMLBody:    `<h2>Delivered</h2><p>The buyer confirmed delivery of order #{{.order_id}}.</p>`,
		TextBody:    "The buyer confirmed delivery of order #{{.order_id}}.",
	},
	"order_cancelled": {
		ID:          "order_cancelled",
		Description: "Sent to the buyer when an unpaid order is cancelled",
		Subject:     "Order cancelled",
		HTMLBody:    `<h2>Order cancelled</h2><p>Order #{{.order_id}} was cancelled: {{.reason}}</p>`,
		TextBody:    "Order #{{.order_id}} was cancelled: {{.reason}}",
	},
	"order_disputed": {
		ID:          "order_disputed",
		Description: "Admin alert when a chargeback opens",
		Subject:     "Chargeback opened on an order",
		HTMLBody:    `<h2>Chargeback opened</h2><p>Order #{{.order_id}} ({{.processor}}) is now disputed. The payout has been frozen pending review.</p>`,
		TextBody:    "Order #{{.order_id}} ({{.processor}}) is now disputed. The payout has been frozen pending review.",
	},
	"payout_completed": {
		ID:          "payout_completed",
		Description: "Sent to the seller when their payout settles",
		Subject:     "Your payout has been sent",
		HTMLBody:    `<h2>Payout sent</h2><p>£{{.amount}} for order #{{.order_id}} is on its way to your account.</p>`,
		TextBody:    "£{{.amount}} for order #{{.order_id}} is on its way to your account.",
	},
	"payout_failed": {
		ID:          "payout_failed",
		Description: "Admin alert when a payout fails at the carrier",
		Subject:     "Payout failed",
		HTMLBody:    `<h2>Payout failed</h2><p>The payout for order #{{.order_id}} failed (carrier ref {{.carrier_ref}}). Manual intervention required.</p>`,
		TextBody:    "The payout for order #{{.order_id}} failed (carrier ref {{.carrier_ref}}). Manual intervention required.",
	},
	"payout_completion_held": {
		ID:          "payout_completion_held",
		Description: "Admin alert when a completion report hits a frozen payout",
		Subject:     "Payout completion held",
		HTMLBody:    `<h2>Payout completion held</h2><p>A payout completion for order #{{.order_id}} arrived but the payout record is frozen or already settled. Event {{.event_key}} from {{.processor}}.</p>`,
		TextBody:    "A payout completion for order #{{.order_id}} arrived but the payout record is frozen or already settled. Event {{.event_key}} from {{.processor}}.",
	},
	"refund_failed": {
		ID:          "refund_failed",
		Description: "Admin alert when a refund attempt fails",
		Subject:     "Refund failed",
		HTMLBody:    `<h2>Refund failed</h2><p>A refund for order #{{.order_id}} failed at the processor. Review and retry manually.</p>`,
		TextBody:    "A refund for order #{{.order_id}} failed at the processor. Review and retry manually.",
	},
	"settlement_illegal_transition": {
		ID:          "settlement_illegal_transition",
		Description: "Admin alert when a settlement event does not fit the order state",
		Subject:     "Settlement event rejected",
		HTMLBody:    `<h2>Illegal settlement transition</h2><p>Order #{{.order_id}} in state {{.status}} received a {{.kind}} event from {{.processor}}. The event was recorded but not applied.</p>`,
		TextBody:    "Order #{{.order_id}} in state {{.status}} received a {{.kind}} event from {{.processor}}. The event was recorded but not applied.",
	},
	"subscription_activated": {
		ID:          "subscription_activated",
		Description: "Bidder subscription confirmation",
		Subject:     "Your bidder subscription is active",
		HTMLBody:    `<h2>Subscription active</h2><p>Your bidder subscription runs until {{.expires_at}}. You can now bid on any open auction.</p>`,
		TextBody:    "Your bidder subscription runs until {{.expires_at}}. You can now bid on any open auction.",
	},
	"stale_orders_digest": {
		ID:          "stale_orders_digest",
		Description: "Daily admin digest of orders stuck before payment",
		Subject:     "{{.count}} orders stuck before payment",
		HTMLBody:    `<h2>Stale orders</h2><p>{{.count}} orders have been waiting for payment longer than {{.threshold_hours}} hours.</p>`,
		TextBody:    "{{.count}} orders have been waiting for payment longer than {{.threshold_hours}} hours.",
	},
}

// GetTemplate returns the template for an id
func GetTemplate(templateID string) (*EmailTemplate, error) {
	tmpl, exists := emailTemplates[templateID]
	if !exists {
		return nil, &errs.Error{Code: errs.NotifInvalidTemplate, Message: "unknown template"}
	}
	return tmpl, nil
}

// RenderTemplate renders a template's subject, HTML body and text body
func RenderTemplate(templateID string, data TemplateData) (subject, html, text string, err error) {
	tmpl, err := GetTemplate(templateID)
	if err != nil {
		return "", "", "", err
	}

	subject, err = renderText(tmpl.ID+".subject", tmpl.Subject, data)
	if err != nil {
		return "", "", "", err
	}
	html, err = renderHTML(tmpl.ID+".html", fmt.Sprintf(layout, tmpl.HTMLBody), data)
	if err != nil {
		return "", "", "", err
	}
	text, err = renderText(tmpl.ID+".text", tmpl.TextBody, data)
	if err != nil {
		return "", "", "", err
	}
	return subject, html, text, nil
}

func renderHTML(name, body string, data TemplateData) (string, error) {
	t, err := template.New(name).Parse(body)
	if err != nil {
		return "", &errs.Error{Code: errs.Internal, Message: "failed to parse HTML template"}
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, map[string]interface{}(data)); err != nil {
		return "", &errs.Error{Code: errs.Internal, Message: "failed to render HTML template"}
	}
	return buf.String(), nil
}

func renderText(name, body string, data TemplateData) (string, error) {
	t, err := texttemplate.New(name).Parse(body)
	if err != nil {
		return "", &errs.Error{Code: errs.Internal, Message: "failed to parse text template"}
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, map[string]interface{}(data)); err != nil {
		return "", &errs.Error{Code: errs.Internal, Message: "failed to render text template"}
	}
	return buf.String(), nil
}

// GetAvailableTemplates lists all template ids
func GetAvailableTemplates() []string {
	ids := make([]string, 0, len(emailTemplates))
	for id := range emailTemplates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetTemplateInfo returns a template's metadata
func GetTemplateInfo(templateID string) (map[string]interface{}, error) {
	tmpl, err := GetTemplate(templateID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"id":          tmpl.ID,
		"description": tmpl.Description,
	}, nil
}
