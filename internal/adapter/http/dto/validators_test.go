package dto

import (
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
)

func TestNormalize_CreatePayment(t *testing.T) {
	memo := "  rent <b>march</b>  "
	channel := " FedNow "
	req := CreatePaymentRequest{
		SenderID:         "  wallet-alice  ",
		ReceiverID:       " wallet-bob ",
		Currency:         " usd ",
		PreferredChannel: &channel,
		Memo:             &memo,
	}
	req.Normalize()

	assert.Equal(t, "wallet-alice", req.SenderID)
	assert.Equal(t, "wallet-bob", req.ReceiverID)
	assert.Equal(t, "USD", req.Currency)
	assert.Equal(t, "fednow", *req.PreferredChannel)
	assert.Equal(t, "rent &lt;b&gt;march&lt;/b&gt;", *req.Memo)
}

func TestNormalize_NilOptionalFields(t *testing.T) {
	req := CreatePaymentRequestRequest{MerchantID: " m-1 "}
	req.Normalize()
	assert.Equal(t, "m-1", req.MerchantID)
	assert.Nil(t, req.Description)

	pay := PayRequestRequest{WalletID: "w-1 "}
	pay.Normalize()
	assert.Equal(t, "w-1", pay.WalletID)
	assert.Nil(t, pay.PreferredChannel)
}

func TestSafeID(t *testing.T) {
	for _, tc := range []string{"ref-001", "REF_002", "a.b.c", "merchant:shop-1"} {
		assert.True(t, identifierRe.MatchString(tc), "expected valid: %s", tc)
	}
	for _, tc := range []string{"ref 001", "ref<001>", "ref;DROP", "", "ref\n001"} {
		assert.False(t, identifierRe.MatchString(tc), "expected invalid: %q", tc)
	}
}

func TestCreatePaymentRequest_Validation(t *testing.T) {
	card := "card"
	wire := "wire"
	tests := []struct {
		name  string
		req   CreatePaymentRequest
		valid bool
	}{
		{"ok", CreatePaymentRequest{SenderID: "a", ReceiverID: "b", Amount: "100.00"}, true},
		{"ok integer amount", CreatePaymentRequest{SenderID: "a", ReceiverID: "b", Amount: "5"}, true},
		{"ok preferred channel", CreatePaymentRequest{SenderID: "a", ReceiverID: "b", Amount: "5", PreferredChannel: &card}, true},
		{"unknown channel", CreatePaymentRequest{SenderID: "a", ReceiverID: "b", Amount: "5", PreferredChannel: &wire}, false},
		{"zero amount", CreatePaymentRequest{SenderID: "a", ReceiverID: "b", Amount: "0"}, false},
		{"negative amount", CreatePaymentRequest{SenderID: "a", ReceiverID: "b", Amount: "-1"}, false},
		{"sub-cent amount", CreatePaymentRequest{SenderID: "a", ReceiverID: "b", Amount: "1.005"}, false},
		{"garbage amount", CreatePaymentRequest{SenderID: "a", ReceiverID: "b", Amount: "ten"}, false},
		{"missing sender", CreatePaymentRequest{ReceiverID: "b", Amount: "1"}, false},
		{"bad currency", CreatePaymentRequest{SenderID: "a", ReceiverID: "b", Amount: "1", Currency: "US"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := binding.Validator.ValidateStruct(&tt.req)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestListPaymentsQuery_Validation(t *testing.T) {
	assert.NoError(t, binding.Validator.ValidateStruct(&ListPaymentsQuery{Status: "completed", Channel: "ach", PageSize: 100}))
	assert.Error(t, binding.Validator.ValidateStruct(&ListPaymentsQuery{Status: "settled"}))
	assert.Error(t, binding.Validator.ValidateStruct(&ListPaymentsQuery{PageSize: 500}))
}
