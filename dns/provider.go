package dns

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/miekg/dns"
	"gopkg.in/yaml.v3"
)

const (
	// maximum time DNS client can be off from server for an update to succeed
	clockSkew = 300

	// maximum size of a UDP transport message in DNS protocol
	udpMaxMsgSize = 512

	defaultResolver = "8.8.8.8:53"
)

// Provider performs RFC2136 dynamic updates against the zone whose
// configuration matches a domain. It publishes and removes the TXT records
// a CA challenge asks for.
type Provider struct {
	Zones    []ZoneConfig
	Resolver string
}

func NewProvider(config string) (*Provider, error) {
	data, err := os.ReadFile(config)
	if err != nil {
		return nil, fmt.Errorf("failed to read zone config: %w", err)
	}

	var zones zoneFile
	if err := yaml.Unmarshal(data, &zones); err != nil {
		return nil, fmt.Errorf("failed to parse zone config: %w", err)
	}

	return &Provider{Zones: zones.Zones}, nil
}

// Configured reports whether some zone covers the domain.
func (p *Provider) Configured(domain string) bool {
	_, err := p.matchingZone(domain)
	return err == nil
}

// LookupTxt resolves the TXT records currently visible for a name.
func (p *Provider) LookupTxt(name string) ([]string, error) {
	resolver := p.Resolver
	if resolver == "" {
		resolver = defaultResolver
	}
	c := dns.Client{}
	m := dns.Msg{}
	m.SetQuestion(dns.Fqdn(name), dns.TypeTXT)
	r, _, err := c.Exchange(&m, resolver)
	if err != nil {
		return nil, err
	}

	var txts []string
	for _, ans := range r.Answer {
		if v, ok := ans.(*dns.TXT); ok {
			txts = append(txts, strings.Join(v.Txt, ""))
		}
	}
	return txts, nil
}

// AddTxt publishes a TXT record with the given value under name in the zone
// covering domain.
func (p *Provider) AddTxt(domain, name, value string) error {
	rr, err := txtRR(name, value)
	if err != nil {
		return err
	}
	m := new(dns.Msg)
	m.SetUpdate(dns.Fqdn(domain))
	m.Insert([]dns.RR{rr})
	return p.sendMessage(domain, m)
}

// DeleteTxt removes a previously published TXT record.
func (p *Provider) DeleteTxt(domain, name, value string) error {
	rr, err := txtRR(name, value)
	if err != nil {
		return err
	}
	m := new(dns.Msg)
	m.SetUpdate(dns.Fqdn(domain))
	m.Remove([]dns.RR{rr})
	return p.sendMessage(domain, m)
}

func txtRR(name, value string) (dns.RR, error) {
	rr, err := dns.NewRR(fmt.Sprintf("%s 300 IN TXT %q", dns.Fqdn(name), value))
	if err != nil {
		return nil, fmt.Errorf("failed to build TXT record: %w", err)
	}
	return rr, nil
}

func (p *Provider) matchingZone(domain string) (*ZoneConfig, error) {
	var match *ZoneConfig
	for i := range p.Zones {
		zone := &p.Zones[i]

		if zone.BaseDomain == "" {
			if match == nil {
				match = zone
			}
			continue
		}

		if strings.HasSuffix(dns.Fqdn(domain), "."+dns.Fqdn(zone.BaseDomain)) || dns.Fqdn(domain) == dns.Fqdn(zone.BaseDomain) {
			// Prefer the most specific base domain.
			if match == nil || len(strings.Split(zone.BaseDomain, ".")) > len(strings.Split(match.BaseDomain, ".")) {
				match = zone
			}
		}
	}

	if match == nil {
		return nil, fmt.Errorf("no matching DNS zone found for domain %s", domain)
	}
	return match, nil
}

func (p *Provider) sendMessage(domain string, msg *dns.Msg) error {
	zone, err := p.matchingZone(domain)
	if err != nil {
		return err
	}

	c := new(dns.Client)
	c.TsigSecret = map[string]string{zone.TsigKeyName: zone.TsigSecret}
	msg.SetTsig(zone.TsigKeyName, zone.TsigSecretAlg, clockSkew, time.Now().Unix())
	if msg.Len() > udpMaxMsgSize || zone.Net == "tcp" {
		c.Net = "tcp"
	}
	resp, _, err := c.Exchange(msg, zone.Nameserver)
	if err != nil {
		return err
	}
	if resp == nil {
		return fmt.Errorf("no response received")
	}
	if resp.Rcode != dns.RcodeSuccess {
		return fmt.Errorf("bad return code: %s", dns.RcodeToString[resp.Rcode])
	}
	return nil
}
