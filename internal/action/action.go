// Package action turns form posts into validated, optionally authenticated
// mutations with a closed result type.
package action

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"

	usermodels "github.com/nikhil/saasbase/internal/models/users"
)

// ErrUnauthenticated is returned, never wrapped in a Result, when a
// WithUser action runs without a resolvable session.
var ErrUnauthenticated = errors.New("User is not authenticated")

type Kind int

const (
	KindSuccess Kind = iota + 1
	KindError
	KindRedirect
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindError:
		return "error"
	case KindRedirect:
		return "redirect"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Result is the outcome of an action. Exactly one of Message (success or
// error) or Location (redirect) is meaningful, selected by Kind.
type Result struct {
	Kind     Kind
	Message  string
	Location string

	// Cookies are set on the response regardless of Kind.
	Cookies []*http.Cookie
}

func Success(message string) Result {
	return Result{Kind: KindSuccess, Message: message}
}

func Error(message string) Result {
	return Result{Kind: KindError, Message: message}
}

func Redirect(location string) Result {
	return Result{Kind: KindRedirect, Location: location}
}

func (r Result) WithCookie(c *http.Cookie) Result {
	r.Cookies = append(append([]*http.Cookie(nil), r.Cookies...), c)
	return r
}

func (r Result) IsError() bool {
	return r.Kind == KindError
}

// Resolver finds the signed-in user for a request. A nil user with a nil
// error means nobody is signed in.
type Resolver interface {
	Resolve(ctx context.Context, r *http.Request) (*usermodels.User, error)
}

// Func is the callable every form route is built from. prev is the result of
// the previous submission of the same form, if any.
type Func func(ctx context.Context, prev Result, r *http.Request) (Result, error)

type ValidatedFunc[In any] func(ctx context.Context, in In, form url.Values) (Result, error)

type UserFunc[In any] func(ctx context.Context, in In, form url.Values, user *usermodels.User) (Result, error)

// Validated decodes and validates the posted form into In before calling fn.
// The first violation is returned as an error Result and fn is not called.
func Validated[In any](fn ValidatedFunc[In]) Func {
	return func(ctx context.Context, _ Result, r *http.Request) (Result, error) {
		in, violation := Decode[In](r)
		if violation != "" {
			return Error(violation), nil
		}
		return fn(ctx, in, r.PostForm)
	}
}

// WithUser is Validated followed by an identity gate. Schema violations are
// reported before the resolver is consulted; a missing user yields
// ErrUnauthenticated.
func WithUser[In any](resolver Resolver, fn UserFunc[In]) Func {
	return func(ctx context.Context, _ Result, r *http.Request) (Result, error) {
		in, violation := Decode[In](r)
		if violation != "" {
			return Error(violation), nil
		}

		user, err := resolver.Resolve(ctx, r)
		if err != nil {
			return Result{}, fmt.Errorf("failed to resolve session: %w", err)
		}
		if user == nil {
			return Result{}, ErrUnauthenticated
		}
		return fn(ctx, in, r.PostForm, user)
	}
}

var (
	formDecoder = newFormDecoder()
	validate    = newValidator()
)

func newFormDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	d.ZeroEmpty(true)
	return d
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if label := f.Tag.Get("label"); label != "" {
			return label
		}
		name := strings.SplitN(f.Tag.Get("schema"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Decode parses the request form into In and validates it. The returned
// string is the first violation, empty when the input is valid.
func Decode[In any](r *http.Request) (In, string) {
	var in In
	if err := parseForm(r); err != nil {
		return in, "Invalid form data"
	}
	if err := formDecoder.Decode(&in, r.PostForm); err != nil {
		return in, decodeMessage(err)
	}
	if err := validate.Struct(in); err != nil {
		return in, violationMessage(err)
	}
	return in, ""
}

// maxMultipartMemory bounds the multipart body held in memory.
const maxMultipartMemory = 1 << 20

// parseForm fills r.PostForm from urlencoded and multipart bodies alike.
func parseForm(r *http.Request) error {
	err := r.ParseMultipartForm(maxMultipartMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		return r.ParseForm()
	}
	return err
}

func decodeMessage(err error) string {
	var multi schema.MultiError
	if errors.As(err, &multi) && len(multi) > 0 {
		fields := make([]string, 0, len(multi))
		for field := range multi {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		return "Invalid value for " + fields[0]
	}
	return "Invalid form data"
}

func violationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid input"
	}
	fe := verrs[0]
	field := fe.Field()

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return "Invalid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.Join(strings.Fields(fe.Param()), ", "))
	case "eqfield":
		return "Passwords do not match"
	case "nefield":
		return fmt.Sprintf("%s must differ from the current value", field)
	case "startswith":
		return fmt.Sprintf("%s must start with %q", field, fe.Param())
	default:
		return "Invalid " + field
	}
}

type clientIPKey struct{}

// WithClientIP stores the caller address picked up by activity records.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func ClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

// TrustedProxies lists the networks allowed to report the caller address
// through X-Forwarded-For.
type TrustedProxies []*net.IPNet

// ParseTrustedProxies accepts CIDR blocks and bare addresses.
func ParseTrustedProxies(entries []string) (TrustedProxies, error) {
	var proxies TrustedProxies
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", entry)
			}
			bits := 8 * net.IPv6len
			if ip.To4() != nil {
				ip, bits = ip.To4(), 8*net.IPv4len
			}
			proxies = append(proxies, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, network, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		proxies = append(proxies, network)
	}
	return proxies, nil
}

func (t TrustedProxies) contains(ip net.IP) bool {
	for _, network := range t {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// RequestIP returns the socket peer address. X-Forwarded-For is only read
// when the peer is a trusted proxy; hops are walked from the right and the
// first untrusted, well-formed address wins.
func RequestIP(r *http.Request, trusted TrustedProxies) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer := net.ParseIP(host)
	if peer == nil {
		return ""
	}
	if !trusted.contains(peer) {
		return peer.String()
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	client := peer
	for i := len(hops) - 1; i >= 0; i-- {
		ip := net.ParseIP(strings.TrimSpace(hops[i]))
		if ip == nil {
			break
		}
		client = ip
		if !trusted.contains(ip) {
			break
		}
	}
	return client.String()
}

// SafePath reports whether p is a same-origin absolute path.
func SafePath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.Contains(p, `\`)
}
