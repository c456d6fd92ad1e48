// Package iban derives payout metadata from International Bank Account Numbers.
package iban

import (
	"errors"
	"strings"

	"golang.org/x/text/language"
)

// ErrInvalidIBAN is returned when an IBAN is too short or carries an unknown country prefix.
var ErrInvalidIBAN = errors.New("invalid iban")

// CountryCode3 returns the ISO 3166-1 alpha-3 code of the country embedded in the first two
// characters of the IBAN, e.g. "DE89..." -> "DEU".
func CountryCode3(value string) (string, error) {
	value = strings.TrimSpace(value)
	if len(value) < 2 {
		return "", ErrInvalidIBAN
	}

	prefix := strings.ToUpper(value[:2])
	if prefix == kosovo {
		return "XKX", nil
	}
	if _, ok := assigned[prefix]; !ok {
		return "", errInvalidCountry(prefix)
	}
	region, err := language.ParseRegion(prefix)
	if err != nil || !region.IsCountry() || region.String() != prefix {
		return "", errInvalidCountry(prefix)
	}
	code := region.ISO3()
	if len(code) != 3 || code == "ZZZ" {
		return "", errInvalidCountry(prefix)
	}
	return code, nil
}

// kosovo is user-assigned in ISO 3166 but used by SEPA IBANs.
const kosovo = "XK"

// assigned holds the officially assigned ISO 3166-1 alpha-2 codes. The CLDR region table also
// parses exceptional, transitional and deprecated codes (UK, EA, YU, SU) which must not reach
// the gateway.
var assigned = func() map[string]struct{} {
	codes := strings.Fields(`
		AD AE AF AG AI AL AM AO AQ AR AS AT AU AW AX AZ
		BA BB BD BE BF BG BH BI BJ BL BM BN BO BQ BR BS BT BV BW BY BZ
		CA CC CD CF CG CH CI CK CL CM CN CO CR CU CV CW CX CY CZ
		DE DJ DK DM DO DZ
		EC EE EG EH ER ES ET
		FI FJ FK FM FO FR
		GA GB GD GE GF GG GH GI GL GM GN GP GQ GR GS GT GU GW GY
		HK HM HN HR HT HU
		ID IE IL IM IN IO IQ IR IS IT
		JE JM JO JP
		KE KG KH KI KM KN KP KR KW KY KZ
		LA LB LC LI LK LR LS LT LU LV LY
		MA MC MD ME MF MG MH MK ML MM MN MO MP MQ MR MS MT MU MV MW MX MY MZ
		NA NC NE NF NG NI NL NO NP NR NU NZ
		OM
		PA PE PF PG PH PK PL PM PN PR PS PT PW PY
		QA
		RE RO RS RU RW
		SA SB SC SD SE SG SH SI SJ SK SL SM SN SO SR SS ST SV SX SY SZ
		TC TD TF TG TH TJ TK TL TM TN TO TR TT TV TW TZ
		UA UG UM US UY UZ
		VA VC VE VG VI VN VU
		WF WS
		YE YT
		ZA ZM ZW`)
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return set
}()

// Normalize strips whitespace and upper-cases an IBAN for transport.
func Normalize(value string) string {
	return strings.ToUpper(strings.Join(strings.Fields(value), ""))
}

type countryError struct {
	prefix string
}

func errInvalidCountry(prefix string) error {
	return &countryError{prefix: prefix}
}

func (e *countryError) Error() string {
	return "invalid country code in iban: " + e.prefix
}

func (e *countryError) Unwrap() error { return ErrInvalidIBAN }
