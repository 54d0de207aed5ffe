// Package party builds render contexts from client records: contract
// parties whose details fill the NAME, ADDRESS and BIRTH placeholders of a
// repeated block, plus the document DATE.
package party

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/benjaminschreck/go-clause/pkg/clause"
	"gopkg.in/yaml.v3"
)

// DateLayout is the layout used for DATE and BIRTH values, e.g. "15 January 2024".
const DateLayout = "02 January 2006"

// Field names produced for each client instance.
const (
	FieldDate      = "DATE"
	FieldName      = "NAME"
	FieldAddress   = "ADDRESS"
	FieldBirth     = "BIRTH"
	FieldFirstName = "FIRSTNAME"
	FieldLastName  = "LASTNAME"
	FieldEmail     = "EMAIL"
	FieldPhone     = "PHONE"
)

// ErrUnknownClient is returned when a party references a client id the
// source does not know.
var ErrUnknownClient = errors.New("unknown client")

// Address is a client's postal address.
type Address struct {
	HouseNumber string `yaml:"house_number" json:"house_number"`
	Street      string `yaml:"street" json:"street"`
	City        string `yaml:"city" json:"city"`
	PostalCode  string `yaml:"postal_code" json:"postal_code"`
	Country     string `yaml:"country" json:"country"`
	State       string `yaml:"state,omitempty" json:"state,omitempty"`
}

// String joins the address parts the way contracts print them. State is
// not part of the printed form.
func (a Address) String() string {
	return joinNonEmpty(", ", a.HouseNumber, a.Street, a.City, a.PostalCode, a.Country)
}

// Client is a person that can appear as a contract party.
type Client struct {
	ID         int64     `yaml:"id" json:"id"`
	FirstName  string    `yaml:"firstname" json:"firstname"`
	SecondName string    `yaml:"second_name,omitempty" json:"second_name,omitempty"`
	LastName   string    `yaml:"lastname" json:"lastname"`
	Birthdate  time.Time `yaml:"birthdate" json:"birthdate"`
	Phone      string    `yaml:"phone_number,omitempty" json:"phone_number,omitempty"`
	Email      string    `yaml:"email,omitempty" json:"email,omitempty"`
	Address    *Address  `yaml:"address,omitempty" json:"address,omitempty"`
}

// FullName is first, second and last name separated by single spaces.
func (c Client) FullName() string {
	return joinNonEmpty(" ", c.FirstName, c.SecondName, c.LastName)
}

// Fields returns the block instance for c. Every key is always present so
// a template using it never fails on a missing field; unknown values are
// empty strings.
func (c Client) Fields() map[string]string {
	fields := map[string]string{
		FieldName:      c.FullName(),
		FieldFirstName: c.FirstName,
		FieldLastName:  c.LastName,
		FieldEmail:     c.Email,
		FieldPhone:     c.Phone,
		FieldBirth:     "",
		FieldAddress:   "",
	}
	if !c.Birthdate.IsZero() {
		fields[FieldBirth] = FormatDate(c.Birthdate)
	}
	if c.Address != nil {
		fields[FieldAddress] = c.Address.String()
	}
	return fields
}

// FormatDate renders t with DateLayout.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Build assembles a render context with DATE set to date and one instance
// per client, in order, for each party.
func Build(date time.Time, parties map[string][]Client) clause.RenderContext {
	rc := clause.NewRenderContext().Set(FieldDate, FormatDate(date))
	for party, clients := range parties {
		for _, c := range clients {
			rc = rc.AddInstance(party, c.Fields())
		}
	}
	return rc
}

// Source looks up clients by id.
type Source interface {
	Client(ctx context.Context, id int64) (Client, error)
}

// MapSource is an in-memory Source.
type MapSource map[int64]Client

// NewMapSource indexes clients by ID.
func NewMapSource(clients []Client) MapSource {
	src := make(MapSource, len(clients))
	for _, c := range clients {
		src[c.ID] = c
	}
	return src
}

// Client implements Source.
func (m MapSource) Client(ctx context.Context, id int64) (Client, error) {
	if err := ctx.Err(); err != nil {
		return Client{}, err
	}
	c, ok := m[id]
	if !ok {
		return Client{}, fmt.Errorf("client %d: %w", id, ErrUnknownClient)
	}
	return c, nil
}

// Resolve looks up every client id of every party and builds the render
// context. Parties are resolved in sorted order and the first unknown id
// aborts the whole resolution.
func Resolve(ctx context.Context, src Source, date time.Time, ids map[string][]int64) (clause.RenderContext, error) {
	names := make([]string, 0, len(ids))
	for party := range ids {
		names = append(names, party)
	}
	sort.Strings(names)

	parties := make(map[string][]Client, len(ids))
	for _, party := range names {
		list := ids[party]
		clients := make([]Client, 0, len(list))
		for _, id := range list {
			c, err := src.Client(ctx, id)
			if err != nil {
				return clause.RenderContext{}, fmt.Errorf("party %s: %w", party, err)
			}
			clients = append(clients, c)
		}
		parties[party] = clients
	}

	clause.GetLogger().WithFields(clause.Fields{
		"parties": len(parties),
		"date":    FormatDate(date),
	}).Debug("Resolved party context")

	return Build(date, parties), nil
}

// File is the on-disk form of a party context: the document date, the
// known clients, and the client ids making up each party.
//
//	date: 2024-01-15
//	clients:
//	  - id: 1
//	    firstname: Jane
//	    lastname: Doe
//	    birthdate: 1990-01-01
//	parties:
//	  PARTY1: [1]
type File struct {
	Date    time.Time          `yaml:"date"`
	Clients []Client           `yaml:"clients"`
	Parties map[string][]int64 `yaml:"parties"`
}

// DecodeFile reads a File from YAML or JSON.
func DecodeFile(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode clients file: %w", err)
	}
	return &f, nil
}

// LoadFile reads a File from path.
func LoadFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open clients file: %w", err)
	}
	defer fh.Close()
	return DecodeFile(fh)
}

// Context resolves the file's parties against its own clients. A zero date
// falls back to now.
func (f *File) Context(ctx context.Context) (clause.RenderContext, error) {
	date := f.Date
	if date.IsZero() {
		date = time.Now()
	}
	return Resolve(ctx, NewMapSource(f.Clients), date, f.Parties)
}

// ContextFor is Context restricted to the fields tmpl declares, so the
// result also renders in strict mode.
func (f *File) ContextFor(ctx context.Context, tmpl *clause.Template) (clause.RenderContext, error) {
	rc, err := f.Context(ctx)
	if err != nil {
		return clause.RenderContext{}, err
	}
	return rc.Restrict(tmpl), nil
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
