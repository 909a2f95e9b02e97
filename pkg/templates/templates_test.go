package templates

import (
	"strings"
	"testing"
)

func TestRenderTemplate(t *testing.T) {
	tests := []struct {
		name        string
		templateID  string
		data        TemplateData
		wantSubject string
		wantInHTML  []string
		wantInText  []string
	}{
		{
			name:        "welcome",
			templateID:  "welcome",
			data:        TemplateData{"name": "Alice"},
			wantSubject: "Welcome to Perchwell",
			wantInHTML:  []string{"Hello Alice", "Perchwell"},
			wantInText:  []string{"Hello Alice"},
		},
		{
			name:        "new bid notifies the seller",
			templateID:  "new_bid",
			data:        TemplateData{"auction_id": int64(7), "amount": "85.00", "bids_count": 4},
			wantSubject: "New bid on your auction",
			wantInHTML:  []string{"#7", "£85.00", "4 bids"},
			wantInText:  []string{"#7", "£85.00", "4 bids"},
		},
		{
			name:        "outbid carries amounts",
			templateID:  "outbid",
			data:        TemplateData{"new_amount": "120.00", "auction_id": int64(42)},
			wantSubject: "You have been outbid",
			wantInHTML:  []string{"£120.00", "#42"},
			wantInText:  []string{"£120.00", "#42"},
		},
		{
			name:        "stale orders digest subject carries count",
			templateID:  "stale_orders_digest",
			data:        TemplateData{"count": 3, "threshold_hours": 48},
			wantSubject: "3 orders stuck before payment",
			wantInHTML:  []string{"48 hours"},
			wantInText:  []string{"48 hours"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject, html, text, err := RenderTemplate(tt.templateID, tt.data)
			if err != nil {
				t.Fatalf("RenderTemplate(%q) error = %v", tt.templateID, err)
			}
			if subject != tt.wantSubject {
				t.Errorf("subject = %q, want %q", subject, tt.wantSubject)
			}
			for _, want := range tt.wantInHTML {
				if !strings.Contains(html, want) {
					t.Errorf("HTML body missing %q", want)
				}
			}
			for _, want := range tt.wantInText {
				if !strings.Contains(text, want) {
					t.Errorf("text body missing %q", want)
				}
			}
		})
	}
}

func TestRenderTemplateUnknownID(t *testing.T) {
	if _, _, _, err := RenderTemplate("no_such_template", nil); err == nil {
		t.Error("RenderTemplate() expected error for unknown template id")
	}
}

func TestGetAvailableTemplates(t *testing.T) {
	ids := GetAvailableTemplates()
	if len(ids) != len(emailTemplates) {
		t.Fatalf("GetAvailableTemplates() returned %d ids, want %d", len(ids), len(emailTemplates))
	}
	for _, required := range []string{"welcome", "outbid", "auction_won", "order_paid", "order_refunded"} {
		found := false
		for _, id := range ids {
			if id == required {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("GetAvailableTemplates() missing %q", required)
		}
	}
}
