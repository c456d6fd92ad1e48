package offramp

import (
	"errors"
	"net/url"
)

const personaWidgetBase = "https://bridge.withpersona.com/widget"

// PersonaWidgetURL converts a provider KYC link into the embeddable identity widget URL.
// origin is the embedding page origin and redirectURI where the widget returns on completion.
func PersonaWidgetURL(kycLink, origin, redirectURI string) (string, error) {
	parsed, err := url.Parse(kycLink)
	if err != nil {
		return "", err
	}
	src := parsed.Query()
	templateID := src.Get("inquiry-template-id")
	if templateID == "" {
		return "", errors.New("kyc link has no inquiry template")
	}

	q := url.Values{}
	q.Set("environment", "production")
	q.Set("inquiry-template-id", templateID)
	q.Set("fields[iqt_token]", src.Get("fields[iqt_token]"))
	q.Set("fields[developer_id]", src.Get("fields[developer_id]"))
	q.Set("reference-id", src.Get("reference-id"))
	q.Set("iframe-origin", origin)
	q.Set("redirect-uri", redirectURI)

	return personaWidgetBase + "?" + q.Encode(), nil
}
