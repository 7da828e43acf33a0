package encoding

import (
	"encoding/base64"
	"errors"
	"testing"

	x402 "github.com/xgrain402/xgrain402-sdk"
)

func TestPaymentRoundTrip(t *testing.T) {
	payment := x402.PaymentPayload{
		X402Version: x402.X402Version,
		Scheme:      x402.SchemeExact,
		Network:     x402.NetworkSolanaMainnet,
		Payload: x402.ExactPayload{
			Transaction: "AQABAgMEBQYHCAkKCwwNDg8QERITFBUWFxgZGhscHR4fIA==",
		},
	}

	encoded, err := EncodePayment(payment)
	if err != nil {
		t.Fatalf("EncodePayment() unexpected error: %v", err)
	}

	decoded, err := DecodePayment(encoded)
	if err != nil {
		t.Fatalf("DecodePayment() unexpected error: %v", err)
	}

	if decoded != payment {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", decoded, payment)
	}
}

func TestDecodePaymentErrors(t *testing.T) {
	validEnvelope := func(scheme string) string {
		s := `{"x402Version":1,"scheme":"` + scheme + `","network":"eip155:8453","payload":{"transaction":"0xabc"}}`
		return base64.StdEncoding.EncodeToString([]byte(s))
	}

	tests := []struct {
		name    string
		encoded string
		wantErr error
	}{
		{name: "not base64", encoded: "not!!!base64", wantErr: x402.ErrMalformedHeader},
		{name: "not json", encoded: base64.StdEncoding.EncodeToString([]byte("hello")), wantErr: x402.ErrMalformedHeader},
		{name: "unknown scheme", encoded: validEnvelope("upto"), wantErr: x402.ErrUnsupportedScheme},
		{name: "empty scheme", encoded: base64.StdEncoding.EncodeToString([]byte(`{}`)), wantErr: x402.ErrUnsupportedScheme},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodePayment(tt.encoded); !errors.Is(err, tt.wantErr) {
				t.Errorf("DecodePayment() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSettlementRoundTrip(t *testing.T) {
	settlement := x402.SettleResponse{
		Success:     true,
		Transaction: "5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7",
		Network:     x402.NetworkSolanaMainnet,
		Payer:       "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU",
	}

	encoded, err := EncodeSettlement(settlement)
	if err != nil {
		t.Fatalf("EncodeSettlement() unexpected error: %v", err)
	}

	decoded, err := DecodeSettlement(encoded)
	if err != nil {
		t.Fatalf("DecodeSettlement() unexpected error: %v", err)
	}

	if decoded != settlement {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", decoded, settlement)
	}
}

func TestDecodeSettlementErrors(t *testing.T) {
	if _, err := DecodeSettlement("***"); err == nil {
		t.Error("expected error for invalid base64")
	}
	if _, err := DecodeSettlement(base64.StdEncoding.EncodeToString([]byte("nope"))); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
