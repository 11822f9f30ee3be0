// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dav

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Depth is the value of the Depth header.
type Depth string

const (
	Depth0        Depth = "0"
	Depth1        Depth = "1"
	DepthInfinity Depth = "infinity"
)

// ParseDepth accepts 0, 1 and infinity (or inf).
func ParseDepth(s string) (Depth, error) {
	switch strings.ToLower(s) {
	case "0":
		return Depth0, nil
	case "1":
		return Depth1, nil
	case "infinity", "inf":
		return DepthInfinity, nil
	}
	return "", fmt.Errorf("invalid depth %q: want 0, 1 or infinity", s)
}

// =============================================================================
// RESOURCES
// =============================================================================

// Property is one raw property value.
type Property struct {
	Name  xml.Name
	Value string
}

// Resource is one PROPFIND response entry.
type Resource struct {
	URL          *url.URL
	Name         string
	IsCollection bool
	Size         int64
	Modified     time.Time
	ContentType  string
	ETag         string
	DisplayName  string
	Locks        []ActiveLock
	Props        []Property
}

// ActiveLock is a lock reported by lockdiscovery.
type ActiveLock struct {
	Token     string
	Owner     string
	Depth     Depth
	Timeout   string
	Exclusive bool
}

// =============================================================================
// WIRE FORMAT
// =============================================================================

type multistatus struct {
	Responses []msResponse `xml:"DAV: response"`
}

type msResponse struct {
	Href      string       `xml:"DAV: href"`
	Propstats []msPropstat `xml:"DAV: propstat"`
}

type msPropstat struct {
	Prop   davProp `xml:"DAV: prop"`
	Status string  `xml:"DAV: status"`
}

type davProp struct {
	ResourceType *struct {
		Collection *struct{} `xml:"DAV: collection"`
	} `xml:"DAV: resourcetype"`
	ContentLength string `xml:"DAV: getcontentlength"`
	LastModified  string `xml:"DAV: getlastmodified"`
	ContentType   string `xml:"DAV: getcontenttype"`
	ETag          string `xml:"DAV: getetag"`
	DisplayName   string `xml:"DAV: displayname"`
	LockDiscovery *struct {
		Active []xmlActiveLock `xml:"DAV: activelock"`
	} `xml:"DAV: lockdiscovery"`
}

type xmlActiveLock struct {
	LockScope struct {
		Exclusive *struct{} `xml:"DAV: exclusive"`
	} `xml:"DAV: lockscope"`
	Depth string `xml:"DAV: depth"`
	Owner struct {
		Inner string `xml:",innerxml"`
	} `xml:"DAV: owner"`
	Timeout   string `xml:"DAV: timeout"`
	LockToken struct {
		Href string `xml:"DAV: href"`
	} `xml:"DAV: locktoken"`
}

// raw variant used to list every property.
type rawMultistatus struct {
	Responses []struct {
		Href      string `xml:"DAV: href"`
		Propstats []struct {
			Prop struct {
				Any []struct {
					XMLName xml.Name
					Inner   string `xml:",innerxml"`
				} `xml:",any"`
			} `xml:"DAV: prop"`
			Status string `xml:"DAV: status"`
		} `xml:"DAV: propstat"`
	} `xml:"DAV: response"`
}

const propfindAllProp = `<?xml version="1.0" encoding="utf-8"?>
<D:propfind xmlns:D="DAV:"><D:allprop/></D:propfind>`

// =============================================================================
// PROPFIND
// =============================================================================

// Propfind lists u (and, for Depth1, its members). The entry for u
// itself comes first.
func (c *Client) Propfind(ctx context.Context, u *url.URL, depth Depth) ([]Resource, error) {
	h := http.Header{}
	h.Set("Depth", string(depth))
	h.Set("Content-Type", `application/xml; charset="utf-8"`)

	resp, err := c.do(ctx, "PROPFIND", u, stringBody(propfindAllProp), h)
	if err != nil {
		return nil, err
	}
	defer drain(resp)
	if err := expect(resp, http.StatusMultiStatus); err != nil {
		return nil, c.fail(err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, c.fail(fmt.Errorf("read PROPFIND response: %w", err))
	}
	resources, err := parseMultistatus(resp.Request.URL, buf.Bytes())
	if err != nil {
		return nil, c.fail(err)
	}

	// the requested resource first, members sorted by name
	self := strings.TrimSuffix(u.Path, "/")
	sort.SliceStable(resources, func(i, j int) bool {
		si := strings.TrimSuffix(resources[i].URL.Path, "/") == self
		sj := strings.TrimSuffix(resources[j].URL.Path, "/") == self
		if si != sj {
			return si
		}
		return resources[i].Name < resources[j].Name
	})

	c.setMessage("Listed %s", u.Redacted())
	return resources, nil
}

// Stat returns the properties of u alone.
func (c *Client) Stat(ctx context.Context, u *url.URL) (*Resource, error) {
	res, err := c.Propfind(ctx, u, Depth0)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, c.fail(fmt.Errorf("%s: %w", u.Redacted(), ErrNotFound))
	}
	return &res[0], nil
}

func parseMultistatus(reqURL *url.URL, body []byte) ([]Resource, error) {
	var ms multistatus
	if err := xml.Unmarshal(body, &ms); err != nil {
		return nil, fmt.Errorf("parse multistatus: %w", err)
	}
	var raw rawMultistatus
	if err := xml.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse multistatus: %w", err)
	}

	out := make([]Resource, 0, len(ms.Responses))
	for i, r := range ms.Responses {
		ref, err := url.Parse(strings.TrimSpace(r.Href))
		if err != nil {
			return nil, fmt.Errorf("bad href %q: %w", r.Href, err)
		}
		res := Resource{URL: reqURL.ResolveReference(ref)}
		res.Name = norm.NFC.String(path.Base(strings.TrimSuffix(res.URL.Path, "/")))
		if res.Name == "." || res.Name == "/" {
			res.Name = "/"
		}

		for _, ps := range r.Propstats {
			if !statusOK(ps.Status) {
				continue
			}
			applyProp(&res, ps.Prop)
		}
		if res.IsCollection && !strings.HasSuffix(res.URL.Path, "/") {
			res.URL.Path += "/"
		}

		if i < len(raw.Responses) {
			for _, ps := range raw.Responses[i].Propstats {
				if !statusOK(ps.Status) {
					continue
				}
				for _, p := range ps.Prop.Any {
					res.Props = append(res.Props, Property{Name: p.XMLName, Value: strings.TrimSpace(p.Inner)})
				}
			}
		}
		out = append(out, res)
	}
	return out, nil
}

func applyProp(res *Resource, p davProp) {
	if p.ResourceType != nil && p.ResourceType.Collection != nil {
		res.IsCollection = true
	}
	if p.ContentLength != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(p.ContentLength), 10, 64); err == nil {
			res.Size = n
		}
	}
	if p.LastModified != "" {
		if t, err := http.ParseTime(strings.TrimSpace(p.LastModified)); err == nil {
			res.Modified = t
		}
	}
	if p.ContentType != "" {
		res.ContentType = p.ContentType
	}
	if p.ETag != "" {
		res.ETag = p.ETag
	}
	if p.DisplayName != "" {
		res.DisplayName = norm.NFC.String(p.DisplayName)
	}
	if p.LockDiscovery != nil {
		for _, al := range p.LockDiscovery.Active {
			res.Locks = append(res.Locks, ActiveLock{
				Token:     strings.TrimSpace(al.LockToken.Href),
				Owner:     ownerText(al.Owner.Inner),
				Depth:     Depth(strings.ToLower(strings.TrimSpace(al.Depth))),
				Timeout:   strings.TrimSpace(al.Timeout),
				Exclusive: al.LockScope.Exclusive != nil,
			})
		}
	}
}

// ownerText strips markup from an owner element, leaving its text.
func ownerText(inner string) string {
	var b strings.Builder
	d := xml.NewDecoder(strings.NewReader("<o>" + inner + "</o>"))
	for {
		tok, err := d.Token()
		if err != nil {
			break
		}
		if cd, ok := tok.(xml.CharData); ok {
			b.Write(cd)
		}
	}
	return strings.TrimSpace(b.String())
}

func statusOK(status string) bool {
	fields := strings.Fields(status)
	if len(fields) < 2 {
		return true
	}
	code, err := strconv.Atoi(fields[1])
	return err == nil && code >= 200 && code < 300
}

// =============================================================================
// PROPPATCH
// =============================================================================

// SetProp sets the dead property ns:name on u.
func (c *Client) SetProp(ctx context.Context, u *url.URL, name, value, ns string) error {
	var v bytes.Buffer
	if err := xml.EscapeText(&v, []byte(value)); err != nil {
		return c.fail(err)
	}
	body := fmt.Sprintf(`<D:set><D:prop><x:%s xmlns:x=%q>%s</x:%s></D:prop></D:set>`, name, ns, v.String(), name)
	if err := c.proppatch(ctx, u, body); err != nil {
		return err
	}
	c.setMessage("Set property %s%s on %s", ns, name, u.Redacted())
	return nil
}

// UnsetProp removes the property ns:name from u.
func (c *Client) UnsetProp(ctx context.Context, u *url.URL, name, ns string) error {
	body := fmt.Sprintf(`<D:remove><D:prop><x:%s xmlns:x=%q/></D:prop></D:remove>`, name, ns)
	if err := c.proppatch(ctx, u, body); err != nil {
		return err
	}
	c.setMessage("Removed property %s%s from %s", ns, name, u.Redacted())
	return nil
}

func (c *Client) proppatch(ctx context.Context, u *url.URL, update string) error {
	if !validXMLName(update) {
		return c.fail(fmt.Errorf("invalid property name"))
	}
	body := `<?xml version="1.0" encoding="utf-8"?>` +
		`<D:propertyupdate xmlns:D="DAV:">` + update + `</D:propertyupdate>`

	h := c.ifHeader(u)
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Type", `application/xml; charset="utf-8"`)

	resp, err := c.do(ctx, "PROPPATCH", u, stringBody(body), h)
	if err != nil {
		return err
	}
	defer drain(resp)
	if err := expect(resp, http.StatusMultiStatus, http.StatusOK); err != nil {
		return c.fail(err)
	}
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	var ms struct {
		Responses []struct {
			Propstats []struct {
				Status string `xml:"DAV: status"`
			} `xml:"DAV: propstat"`
		} `xml:"DAV: response"`
	}
	if err := xml.NewDecoder(resp.Body).Decode(&ms); err != nil {
		return c.fail(fmt.Errorf("parse PROPPATCH response: %w", err))
	}
	for _, r := range ms.Responses {
		for _, ps := range r.Propstats {
			if !statusOK(ps.Status) {
				return c.fail(fmt.Errorf("PROPPATCH %s: %s", u.Redacted(), ps.Status))
			}
		}
	}
	return nil
}

// validXMLName checks that the document built around a property name
// is well formed.
func validXMLName(fragment string) bool {
	d := xml.NewDecoder(strings.NewReader(`<D:r xmlns:D="DAV:">` + fragment + `</D:r>`))
	for {
		if _, err := d.Token(); err != nil {
			return errors.Is(err, io.EOF)
		}
	}
}
