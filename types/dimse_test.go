package types

import "testing"

func TestResponseCommandFor(t *testing.T) {
	tests := []struct {
		name     string
		request  uint16
		expected uint16
	}{
		{"C-STORE", CStoreRQ, CStoreRSP},
		{"C-GET", CGetRQ, CGetRSP},
		{"C-FIND", CFindRQ, CFindRSP},
		{"C-MOVE", CMoveRQ, CMoveRSP},
		{"C-ECHO", CEchoRQ, CEchoRSP},
		{"unknown", 0x0040, 0x8040},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResponseCommandFor(tt.request); got != tt.expected {
				t.Errorf("ResponseCommandFor(0x%04x) = 0x%04x, want 0x%04x", tt.request, got, tt.expected)
			}
			if tt.expected&0x8000 == 0 {
				t.Errorf("response 0x%04x lacks the response bit", tt.expected)
			}
		})
	}
}

func TestDIMSEStatusConstants(t *testing.T) {
	tests := []struct {
		name     string
		constant uint16
		expected uint16
	}{
		{"Success", StatusSuccess, 0x0000},
		{"Pending", StatusPending, 0xFF00},
		{"PendingOptionalKeysNotSupported", StatusPendingOptionalKeysNotSupported, 0xFF01},
		{"Cancel", StatusCancel, 0xFE00},
		{"OutOfResources", StatusOutOfResources, 0xA700},
		{"IdentifierDoesNotMatch", StatusIdentifierDoesNotMatch, 0xA900},
		{"CannotUnderstand", StatusCannotUnderstand, 0xC000},
		{"ProcessingFailure", StatusProcessingFailure, 0x0110},
		{"DuplicateSOPInstance", StatusDuplicateSOPInstance, 0x0111},
		{"SOPClassNotSupported", StatusSOPClassNotSupported, 0x0122},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.constant != tt.expected {
				t.Errorf("Status%s = 0x%04x, want 0x%04x", tt.name, tt.constant, tt.expected)
			}
		})
	}
}
