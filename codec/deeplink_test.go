package codec

import (
	"strings"
	"testing"
)

func TestDeepLinkRoundTrip(t *testing.T) {
	rec := testEnrollmentRecord()

	link, err := EncodeDeepLink("https://pair.example.com", rec)
	if err != nil {
		t.Fatalf("EncodeDeepLink failed: %v", err)
	}
	if !strings.HasPrefix(link, "https://pair.example.com/enroll?") {
		t.Fatalf("unexpected deep link shape: %q", link)
	}

	got, err := DecodeDeepLink(link)
	if err != nil {
		t.Fatalf("DecodeDeepLink failed: %v", err)
	}
	if got != rec {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, rec)
	}
}

func TestDeepLinkRejectsTicketRecords(t *testing.T) {
	if _, err := EncodeDeepLink("https://pair.example.com", testTicketRecord()); err == nil {
		t.Fatal("expected kind mismatch for ticket records")
	}
}

func TestDecodeDeepLinkFailsClosed(t *testing.T) {
	rec := testEnrollmentRecord()
	link, err := EncodeDeepLink("https://pair.example.com", rec)
	if err != nil {
		t.Fatalf("EncodeDeepLink failed: %v", err)
	}

	cases := []string{
		"://bad",
		strings.Replace(link, "exp=", "exp=notanumber&x=", 1),
		strings.Replace(link, "v=1", "v=abc", 1),
		strings.Replace(link, "e=", "zz=", 1),
	}
	for _, c := range cases {
		if _, err := DecodeDeepLink(c); err == nil {
			t.Fatalf("expected decode failure for %q", c)
		}
	}
}
