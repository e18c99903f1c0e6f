package codec

import (
	"net/url"
	"strconv"
	"time"
)

const deepLinkPath = "/enroll"

// EncodeDeepLink renders an enrollment record as a deep link URL carrying
// the same fields as ordinary query parameters:
//
//	<base>/enroll?e=<bearer>&tid=<tenant>&sid=<store>&dt=<device_type>&v=<version>&exp=<epoch_seconds>&kid=<key_version>&sig=<hex>
func EncodeDeepLink(base string, rec Record) (string, error) {
	if rec.Kind != KindEnrollment {
		return "", ErrKindMismatch
	}
	if err := validateRecord(rec); err != nil {
		return "", err
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u.Path = u.Path + deepLinkPath

	q := url.Values{}
	q.Set("e", rec.Bearer)
	q.Set("tid", rec.TenantID)
	q.Set("sid", rec.Scope1)
	q.Set("dt", rec.Scope2)
	q.Set("v", strconv.Itoa(rec.Version))
	q.Set("exp", strconv.FormatInt(normalizeExpiry(rec.ExpiresAt).Unix(), 10))
	q.Set("kid", rec.KeyVersion)
	q.Set("sig", rec.Signature)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// DecodeDeepLink is the exact inverse of [EncodeDeepLink] and fails closed
// on any missing or unparsable parameter.
func DecodeDeepLink(link string) (Record, error) {
	u, err := url.Parse(link)
	if err != nil {
		return Record{}, ErrMalformedPayload
	}

	q := u.Query()
	version, err := strconv.Atoi(q.Get("v"))
	if err != nil {
		return Record{}, ErrMalformedPayload
	}
	epoch, err := strconv.ParseInt(q.Get("exp"), 10, 64)
	if err != nil {
		return Record{}, ErrMalformedPayload
	}

	rec := Record{
		Version:    version,
		Kind:       KindEnrollment,
		TenantID:   q.Get("tid"),
		Scope1:     q.Get("sid"),
		Scope2:     q.Get("dt"),
		Bearer:     q.Get("e"),
		ExpiresAt:  time.Unix(epoch, 0).UTC(),
		KeyVersion: q.Get("kid"),
		Signature:  q.Get("sig"),
	}
	if err := validateRecord(rec); err != nil {
		return Record{}, ErrMalformedPayload
	}

	return rec, nil
}
