package googleauth

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Service string

const (
	ServiceDocs  Service = "docs"
	ServiceDrive Service = "drive"
)

// Identity scopes are always requested so the account email can be read back
// after consent.
var identityScopes = []string{"openid", "email"}

var serviceScopes = map[Service][]string{
	ServiceDocs:  {"https://www.googleapis.com/auth/documents"},
	ServiceDrive: {"https://www.googleapis.com/auth/drive"},
}

var errUnknownService = errors.New("unknown service")

// UserServices lists the services an account can be authorized for.
func UserServices() []Service {
	return []Service{ServiceDocs, ServiceDrive}
}

func UserServiceCSV() string {
	names := make([]string, 0, len(serviceScopes))
	for _, s := range UserServices() {
		names = append(names, string(s))
	}

	return strings.Join(names, ",")
}

func ParseService(s string) (Service, error) {
	svc := Service(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := serviceScopes[svc]; !ok {
		return "", fmt.Errorf("%w %q (expected one of %s)", errUnknownService, s, UserServiceCSV())
	}

	return svc, nil
}

// ParseServices splits a comma-separated list. "all" or an empty string selects
// every service.
func ParseServices(csv string) ([]Service, error) {
	csv = strings.TrimSpace(csv)
	if csv == "" || strings.EqualFold(csv, "all") {
		return UserServices(), nil
	}

	seen := map[Service]bool{}

	var out []Service

	for part := range strings.SplitSeq(csv, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}

		svc, err := ParseService(part)
		if err != nil {
			return nil, err
		}

		if !seen[svc] {
			seen[svc] = true
			out = append(out, svc)
		}
	}

	return out, nil
}

func Scopes(service Service) ([]string, error) {
	scopes, ok := serviceScopes[service]
	if !ok {
		return nil, fmt.Errorf("%w %q", errUnknownService, service)
	}

	return append([]string(nil), scopes...), nil
}

// ScopesForServices returns the sorted union of the services' scopes plus the
// identity scopes.
func ScopesForServices(services []Service) ([]string, error) {
	set := map[string]bool{}
	for _, s := range identityScopes {
		set[s] = true
	}

	for _, svc := range services {
		scopes, err := Scopes(svc)
		if err != nil {
			return nil, err
		}

		for _, s := range scopes {
			set[s] = true
		}
	}

	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}

	sort.Strings(out)

	return out, nil
}
