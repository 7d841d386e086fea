// Package string masks credentials in connection strings before they are
// logged.
package string

import (
	"net/url"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// sensitiveParams are the query and keyword parameters whose values are
// always masked.
var sensitiveParams = map[string]bool{
	"password":     true,
	"sslpassword":  true,
	"sslkey":       true,
	"passfile":     true,
	"token":        true,
	"access_token": true,
}

// Mask will mask a string by replacing the second half with asterisks.
func Mask(s string) string {
	l := len(s)
	if l == 0 {
		return s
	}
	if l == 1 {
		return "*"
	}
	h := l / 2
	return s[0:h] + strings.Repeat("*", l-h)
}

// MaskURL returns the URL with the password and sensitive query values
// masked. User name, host, and path stay readable.
func MaskURL(urlString string) (string, error) {
	u, err := url.Parse(urlString)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse URL")
	}
	var str strings.Builder
	str.WriteString(u.Scheme)
	str.WriteString("://")
	if u.User != nil {
		str.WriteString(u.User.Username())
		if pass, ok := u.User.Password(); ok {
			str.WriteString(":")
			str.WriteString(Mask(pass))
		}
		str.WriteString("@")
	}
	str.WriteString(u.Host)
	str.WriteString(u.Path)
	query := u.Query()
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	qs := make([]string, 0, len(keys))
	for _, k := range keys {
		v := strings.Join(query[k], ",")
		if sensitiveParams[strings.ToLower(k)] {
			v = Mask(v)
		}
		qs = append(qs, k+"="+v)
	}
	if len(qs) > 0 {
		str.WriteString("?")
		str.WriteString(strings.Join(qs, "&"))
	}
	return str.String(), nil
}

// MaskDSN masks a database or redis connection string. URLs go through
// MaskURL, keyword/value strings ("host=db password=x") have their sensitive
// values masked, and anything else, such as a sqlite file path, is returned
// as is.
func MaskDSN(dsn string) string {
	if strings.Contains(dsn, "://") {
		masked, err := MaskURL(dsn)
		if err != nil {
			return Mask(dsn)
		}
		return masked
	}
	if !strings.Contains(dsn, "=") || strings.ContainsAny(dsn, "?") {
		return dsn
	}
	fields := strings.Fields(dsn)
	for i, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if ok && sensitiveParams[strings.ToLower(k)] {
			fields[i] = k + "=" + Mask(strings.Trim(v, "'"))
		}
	}
	return strings.Join(fields, " ")
}
