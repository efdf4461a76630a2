package controllers_test

import (
	"context"
	"testing"
	"time"

	"crm-backend/models"
	"crm-backend/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func proposalBody(customerID string) map[string]any {
	return map[string]any{
		"customer_id": customerID,
		"valid_until": date(time.Now().AddDate(0, 0, 30)),
		"items": []map[string]any{
			{"name": "Consulting", "quantity": 2, "unit_price": 50},
		},
	}
}

func TestProposalLifecycleAndConversion(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user("alice@example.com", models.RoleUser)
	tok := env.token(alice)
	customer := env.customer(alice, "grace@example.com")

	r := env.request(fiber.MethodPost, "/api/proposals", tok, proposalBody(customer.Id))
	require.Equal(t, fiber.StatusCreated, r.status, string(r.raw))
	id := r.data()["id"].(string)
	assert.Equal(t, models.FormatNumber(models.ProposalPrefix, time.Now().UTC(), 1), r.data()["number"])
	assert.Equal(t, "draft", r.data()["status"])
	assert.EqualValues(t, 100, r.data()["subtotal"])
	assert.EqualValues(t, 18, r.data()["tax_total"])
	assert.EqualValues(t, 118, r.data()["grand_total"])

	second := env.request(fiber.MethodPost, "/api/proposals", tok, proposalBody(customer.Id))
	require.Equal(t, fiber.StatusCreated, second.status)
	assert.Equal(t, models.FormatNumber(models.ProposalPrefix, time.Now().UTC(), 2), second.data()["number"])

	early := env.request(fiber.MethodPost, "/api/proposals/"+id+"/convert-to-invoice", tok, nil)
	assert.Equal(t, fiber.StatusBadRequest, early.status)
	assert.Equal(t, models.ErrProposalNotAccepted.Error(), early.body["message"])

	for _, status := range []string{"sent", "negotiating", "accepted"} {
		step := env.request(fiber.MethodPut, "/api/proposals/"+id, tok, map[string]any{"status": status, "discount": 10})
		require.Equal(t, fiber.StatusOK, step.status, status+": "+string(step.raw))
		assert.Equal(t, status, step.data()["status"])
	}

	// accepted is final
	back := env.request(fiber.MethodPut, "/api/proposals/"+id, tok, map[string]any{"status": "draft"})
	assert.Equal(t, fiber.StatusBadRequest, back.status)
	assert.Equal(t, models.ErrInvalidTransition.Error(), back.body["message"])

	var stored models.Customer
	require.NoError(t, env.db.First(&stored, "id = ?", customer.Id).Error)
	assert.NotNil(t, stored.LastContact, "acceptance counts as contact")

	conv := env.request(fiber.MethodPost, "/api/proposals/"+id+"/convert-to-invoice", tok, nil)
	require.Equal(t, fiber.StatusCreated, conv.status, string(conv.raw))
	inv := conv.data()
	assert.Equal(t, models.FormatNumber(models.InvoicePrefix, time.Now().UTC(), 1), inv["number"])
	assert.Equal(t, "draft", inv["status"])
	assert.Equal(t, id, inv["proposal_id"])
	assert.EqualValues(t, 108, inv["grand_total"])
	assert.EqualValues(t, 108, inv["due_amount"])

	again := env.request(fiber.MethodPost, "/api/proposals/"+id+"/convert-to-invoice", tok, nil)
	assert.Equal(t, fiber.StatusBadRequest, again.status)
	assert.Equal(t, models.ErrProposalConverted.Error(), again.body["message"])

	frozen := env.request(fiber.MethodPut, "/api/proposals/"+id, tok, map[string]any{"notes": "late edit"})
	assert.Equal(t, fiber.StatusBadRequest, frozen.status)
	noDelete := env.request(fiber.MethodDelete, "/api/proposals/"+id, tok, nil)
	assert.Equal(t, fiber.StatusBadRequest, noDelete.status)

	got := env.request(fiber.MethodGet, "/api/proposals/"+id, tok, nil)
	assert.Equal(t, true, got.data()["converted_to_invoice"])
	assert.Equal(t, inv["id"], got.data()["invoice_id"])

	stats := env.request(fiber.MethodGet, "/api/proposals/stats", tok, nil)
	require.Equal(t, fiber.StatusOK, stats.status)
	assert.EqualValues(t, 100, stats.data()["acceptance_rate"])

	cheap := env.request(fiber.MethodGet, "/api/proposals?max_amount=110", tok, nil)
	assert.EqualValues(t, 1, cheap.body["total"])
	drafts := env.request(fiber.MethodGet, "/api/proposals?status=draft", tok, nil)
	assert.EqualValues(t, 1, drafts.body["total"])

	del := env.request(fiber.MethodDelete, "/api/proposals/"+second.data()["id"].(string), tok, nil)
	assert.Equal(t, fiber.StatusOK, del.status)
}

func TestCreateProposalValidation(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user("alice@example.com", models.RoleUser)
	tok := env.token(alice)
	customer := env.customer(alice, "grace@example.com")

	body := proposalBody(customer.Id)
	body["items"] = []map[string]any{}
	r := env.request(fiber.MethodPost, "/api/proposals", tok, body)
	assert.Equal(t, fiber.StatusBadRequest, r.status)

	body = proposalBody(customer.Id)
	body["items"] = []map[string]any{{"name": "Consulting", "quantity": 0, "unit_price": 50}}
	r = env.request(fiber.MethodPost, "/api/proposals", tok, body)
	assert.Equal(t, fiber.StatusBadRequest, r.status)
	assert.Equal(t, "required", r.body["errors"].(map[string]any)["items[0].quantity"])

	body = proposalBody("6f1c1f8e-8f53-4a0c-9d55-4b2a3c1b0e11")
	r = env.request(fiber.MethodPost, "/api/proposals", tok, body)
	assert.Equal(t, fiber.StatusNotFound, r.status)
}

func TestSendProposalEmail(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user("alice@example.com", models.RoleUser)
	tok := env.token(alice)
	customer := env.customer(alice, "grace@example.com")

	r := env.request(fiber.MethodPost, "/api/proposals", tok, proposalBody(customer.Id))
	require.Equal(t, fiber.StatusCreated, r.status)
	id, number := r.data()["id"].(string), r.data()["number"].(string)

	env.pdf.EXPECT().Render(gomock.Any()).DoAndReturn(func(doc services.PDFDocument) ([]byte, error) {
		assert.Equal(t, "PROPOSAL", doc.Title)
		assert.Equal(t, 118.0, doc.GrandTotal)
		assert.Equal(t, "Grace Hopper", doc.Customer.Name)
		return []byte("%PDF-1.3"), nil
	})
	env.mailer.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, msg services.Message) error {
		assert.Equal(t, []string{"grace@example.com"}, msg.To)
		assert.Equal(t, "Proposal: "+number, msg.Subject)
		assert.Contains(t, msg.HTML, "Looking forward")
		if assert.Len(t, msg.Attachments, 1) {
			assert.Equal(t, []byte("%PDF-1.3"), msg.Attachments[0].Content)
		}
		return nil
	})

	sent := env.request(fiber.MethodPost, "/api/proposals/"+id+"/send-email", tok, map[string]any{"custom_message": "Looking forward"})
	require.Equal(t, fiber.StatusOK, sent.status, string(sent.raw))

	got := env.request(fiber.MethodGet, "/api/proposals/"+id, tok, nil)
	assert.Equal(t, "sent", got.data()["status"])
}

func TestGenerateProposalPDF(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user("alice@example.com", models.RoleUser)
	tok := env.token(alice)
	customer := env.customer(alice, "grace@example.com")

	r := env.request(fiber.MethodPost, "/api/proposals", tok, proposalBody(customer.Id))
	require.Equal(t, fiber.StatusCreated, r.status)
	id := r.data()["id"].(string)

	env.pdf.EXPECT().Render(gomock.Any()).Return([]byte("%PDF-1.3"), nil).Times(2)

	stored := env.request(fiber.MethodGet, "/api/proposals/"+id+"/generate-pdf", tok, nil)
	require.Equal(t, fiber.StatusOK, stored.status)
	assert.FileExists(t, stored.body["pdf_path"].(string))

	download := env.request(fiber.MethodGet, "/api/proposals/"+id+"/generate-pdf?download=true", tok, nil)
	require.Equal(t, fiber.StatusOK, download.status)
	assert.Equal(t, "application/pdf", download.header("Content-Type"))
	assert.Equal(t, "%PDF-1.3", string(download.raw))
}
