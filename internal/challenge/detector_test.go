package challenge

import (
	"testing"

	"kumo/internal/rule"
)

func TestCloudflareJustAMoment(t *testing.T) {
	d := &CloudflareDetector{}
	det := d.Detect(&ResponseContext{
		Status: 503,
		Body:   "<html>Just a moment...</html>",
	})
	if !det.Detected || det.Kind != KindCloudflareJs {
		t.Fatalf("got %+v", det)
	}
}

func TestCloudflareCleanPageNotDetected(t *testing.T) {
	d := &CloudflareDetector{}
	det := d.Detect(&ResponseContext{
		Status: 200,
		Body:   "<html><body>Welcome</body></html>",
	})
	if det.Detected {
		t.Fatalf("clean 200 page should not detect: %+v", det)
	}
}

func TestCloudflareHeaderWith403(t *testing.T) {
	d := &CloudflareDetector{}
	det := d.Detect(&ResponseContext{
		Status:  403,
		Headers: map[string]string{"CF-RAY": "abc123-SJC"},
		Body:    "<html>denied</html>",
	})
	if !det.Detected || det.Kind != KindCloudflareJs {
		t.Fatalf("got %+v", det)
	}
	if det.Extra["cf_ray"] != "abc123-SJC" {
		t.Errorf("cf_ray not recorded: %v", det.Extra)
	}
}

func TestCloudflareHeaderWith200NotDetected(t *testing.T) {
	d := &CloudflareDetector{}
	det := d.Detect(&ResponseContext{
		Status:  200,
		Headers: map[string]string{"cf-cache-status": "HIT"},
		Body:    "<html>fine</html>",
	})
	if det.Detected {
		t.Fatalf("cf header on a healthy 200 should not detect: %+v", det)
	}
}

func TestCloudflareTurnstileSubClassification(t *testing.T) {
	d := &CloudflareDetector{}
	det := d.Detect(&ResponseContext{
		Status: 403,
		Body:   `<script src="https://challenges.cloudflare.com/turnstile/v0/api.js"></script>`,
	})
	if det.Kind != KindCloudflareTurnstile {
		t.Fatalf("got %v", det.Kind)
	}

	det = d.Detect(&ResponseContext{
		Status: 503,
		Body:   "<title>Attention Required! | Cloudflare</title>",
	})
	if det.Kind != KindCloudflareUnderAttack {
		t.Fatalf("got %v", det.Kind)
	}
}

func TestRecaptchaSiteKey(t *testing.T) {
	d := &RecaptchaDetector{Version: "v2"}
	det := d.Detect(&ResponseContext{
		Status: 200,
		Body:   `<div class="g-recaptcha" data-sitekey="6LcKey"></div><script src="https://www.google.com/recaptcha/api.js"></script>`,
	})
	if !det.Detected || det.Kind != KindRecaptchaV2 {
		t.Fatalf("got %+v", det)
	}
	if det.Extra["site_key"] != "6LcKey" {
		t.Errorf("site key: %v", det.Extra)
	}
}

func TestRecaptchaDeclaredV3(t *testing.T) {
	d := &RecaptchaDetector{Version: "v3"}
	det := d.Detect(&ResponseContext{Body: "grecaptcha.execute()"})
	if det.Kind != KindRecaptchaV3 {
		t.Fatalf("got %v", det.Kind)
	}
}

func TestHcaptcha(t *testing.T) {
	d := &HcaptchaDetector{}
	det := d.Detect(&ResponseContext{
		Body: `<div class="h-captcha" data-sitekey="hkey"></div>`,
	})
	if !det.Detected || det.Kind != KindHcaptcha {
		t.Fatalf("got %+v", det)
	}
	if det.Extra["site_key"] != "hkey" {
		t.Errorf("site key: %v", det.Extra)
	}
}

func TestCustomDetectorAllConditionsMustHold(t *testing.T) {
	d, err := newCustomDetector(&rule.DetectorConfig{
		Type:         rule.DetectorCustom,
		StatusCodes:  []int{403},
		BodyContains: []string{"blocked"},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if det := d.Detect(&ResponseContext{Status: 403, Body: "you are blocked"}); !det.Detected {
		t.Error("both conditions hold, should detect")
	}
	if det := d.Detect(&ResponseContext{Status: 403, Body: "fine"}); det.Detected {
		t.Error("body condition fails, should not detect")
	}
	if det := d.Detect(&ResponseContext{Status: 200, Body: "you are blocked"}); det.Detected {
		t.Error("status condition fails, should not detect")
	}
}
