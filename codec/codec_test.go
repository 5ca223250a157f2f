package codec

import (
	"errors"
	"math/rand"
	"net"
	"testing"

	"github.com/miekg/dns"
	"golang.org/x/net/dns/dnsmessage"
)

// response for google.com A captured behind a 2 byte length prefix
var googleFixture = []byte{
	0, 44, 245, 178, 129, 128, 0, 1, 0, 1, 0, 0, 0, 0, 6, 103, 111, 111, 103, 108, 101,
	3, 99, 111, 109, 0, 0, 1, 0, 1, 192, 12, 0, 1, 0, 1, 0, 0, 0, 176, 0, 4, 142, 0, 176,
	0, 4, 142, 250, 72, 174,
}

var googleQuery = []byte{
	245, 178, 1, 0, 0, 1, 0, 0, 0, 0, 0, 0, 6, 103, 111, 111, 103, 108, 101, 3, 99,
	111, 109, 0, 0, 1, 0, 1,
}

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name    string
		raw     []byte
		qr      string
		opcode  string
		rcode   string
		wantErr bool
	}{
		{
			name:   "request",
			raw:    googleQuery,
			qr:     "request",
			opcode: "standard query",
			rcode:  "no error",
		},
		{
			name:   "response",
			raw:    googleFixture[2:],
			qr:     "response",
			opcode: "standard query",
			rcode:  "no error",
		},
		{
			name:   "inverse refused",
			raw:    []byte{0, 1, 0x88, 0x05, 0, 0, 0, 0, 0, 0, 0, 0},
			qr:     "response",
			opcode: "inverse query",
			rcode:  "refused",
		},
		{
			name:   "reserved",
			raw:    []byte{0, 1, 0xf8, 0x0f, 0, 0, 0, 0, 0, 0, 0, 0},
			qr:     "response",
			opcode: "reserved",
			rcode:  "reserved",
		},
		{
			name:    "short",
			raw:     []byte{0, 1, 0x81},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := ParseHeader(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseHeader() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrFormat) {
					t.Errorf("ParseHeader() error = %v, want ErrFormat", err)
				}
				return
			}
			if h.QR.String() != tt.qr || h.Opcode.String() != tt.opcode || h.Rcode.String() != tt.rcode {
				t.Errorf("ParseHeader() = %s/%s/%s, want %s/%s/%s", h.QR, h.Opcode, h.Rcode, tt.qr, tt.opcode, tt.rcode)
			}
		})
	}
}

func TestParseHeaderCounts(t *testing.T) {
	h, err := ParseHeader(googleFixture[2:])
	if err != nil {
		t.Fatal(err)
	}
	if h.ID != 0xf5b2 || h.QDCount != 1 || h.ANCount != 1 || h.NSCount != 0 || h.ARCount != 0 {
		t.Errorf("ParseHeader() = %+v", h)
	}
}

func TestParseQuestions(t *testing.T) {
	qs, end, err := ParseQuestions(googleQuery, 1)
	if err != nil {
		t.Fatalf("ParseQuestions() error = %v", err)
	}
	if len(qs) != 1 || qs[0].Name != "google.com" || qs[0].Type != 1 || qs[0].Class != 1 {
		t.Fatalf("ParseQuestions() = %+v", qs)
	}
	if qs[0].String() != "google.com (A)" {
		t.Errorf("Question.String() = %q", qs[0].String())
	}
	if end != len(googleQuery) {
		t.Errorf("ParseQuestions() end = %d, want %d", end, len(googleQuery))
	}
}

func TestParseQuestionsMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{name: "label past end", raw: append(append([]byte{}, googleQuery[:12]...), 9, 'a', 'b')},
		{name: "missing terminator", raw: append(append([]byte{}, googleQuery[:12]...), 1, 'a')},
		{name: "missing qtype", raw: append(append([]byte{}, googleQuery[:12]...), 1, 'a', 0, 0)},
		{name: "pointer", raw: append(append([]byte{}, googleQuery[:12]...), 0xc0, 12, 0, 1, 0, 1)},
		{name: "header only", raw: googleQuery[:12]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseQuestions(tt.raw, 1)
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Errorf("ParseQuestions() error = %v, want *FormatError", err)
			}
		})
	}
}

func TestDecodeFixture(t *testing.T) {
	m, err := Decode(googleFixture[2:])
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(m.Questions) != 1 || m.Questions[0].Name != "google.com" || m.Questions[0].TypeString() != "A" {
		t.Fatalf("Decode() questions = %+v", m.Questions)
	}
	if len(m.Answers) != 1 {
		t.Fatalf("Decode() answers = %+v", m.Answers)
	}
	a := m.Answers[0]
	if a.Kind != AnswerAddress || a.Data != "142.0.176.0" || a.Name != "google.com" || a.TTL != 176 {
		t.Errorf("Decode() answer = %+v", a)
	}
	if got := m.QuestionString(); got != "{ google.com (A) }" {
		t.Errorf("QuestionString() = %q", got)
	}
}

func buildAAAA(t *testing.T) []byte {
	t.Helper()
	name := dnsmessage.MustNewName("example.com.")
	b := dnsmessage.NewBuilder(make([]byte, 0, 512), dnsmessage.Header{ID: 7, Response: true, RecursionAvailable: true})
	b.EnableCompression()
	if err := b.StartQuestions(); err != nil {
		t.Fatal(err)
	}
	if err := b.Question(dnsmessage.Question{Name: name, Type: dnsmessage.TypeAAAA, Class: dnsmessage.ClassINET}); err != nil {
		t.Fatal(err)
	}
	if err := b.StartAnswers(); err != nil {
		t.Fatal(err)
	}
	hdr := dnsmessage.ResourceHeader{Name: name, Type: dnsmessage.TypeAAAA, Class: dnsmessage.ClassINET, TTL: 60}
	addrs := []string{"2001:db8::1", "2606:4700:4700::1111"}
	for _, s := range addrs {
		var aaaa dnsmessage.AAAAResource
		copy(aaaa.AAAA[:], net.ParseIP(s).To16())
		if err := b.AAAAResource(hdr, aaaa); err != nil {
			t.Fatal(err)
		}
	}
	raw, err := b.Finish()
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestDecodeAAAA(t *testing.T) {
	m, err := Decode(buildAAAA(t))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	got := m.AnswerStrings()
	want := []string{"2001:db8::1", "2606:4700:4700::1111"}
	if len(got) != len(want) {
		t.Fatalf("Decode() answers = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("answer %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestDecodeStopsAtCNAME(t *testing.T) {
	name := dnsmessage.MustNewName("www.example.com.")
	b := dnsmessage.NewBuilder(make([]byte, 0, 512), dnsmessage.Header{ID: 9, Response: true})
	b.EnableCompression()
	_ = b.StartQuestions()
	_ = b.Question(dnsmessage.Question{Name: name, Type: dnsmessage.TypeA, Class: dnsmessage.ClassINET})
	_ = b.StartAnswers()
	_ = b.CNAMEResource(
		dnsmessage.ResourceHeader{Name: name, Type: dnsmessage.TypeCNAME, Class: dnsmessage.ClassINET, TTL: 30},
		dnsmessage.CNAMEResource{CNAME: dnsmessage.MustNewName("edge.example.net.")},
	)
	_ = b.AResource(
		dnsmessage.ResourceHeader{Name: dnsmessage.MustNewName("edge.example.net."), Type: dnsmessage.TypeA, Class: dnsmessage.ClassINET, TTL: 30},
		dnsmessage.AResource{A: [4]byte{10, 0, 0, 1}},
	)
	raw, err := b.Finish()
	if err != nil {
		t.Fatal(err)
	}

	m, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(m.Answers) != 1 || m.Answers[0].Kind != AnswerCNAME {
		t.Errorf("Decode() answers = %+v, want a single CNAME marker", m.Answers)
	}
}

func TestDecodeUncompressedOwner(t *testing.T) {
	req := new(dns.Msg)
	req.SetQuestion("example.org.", dns.TypeA)
	resp := new(dns.Msg)
	resp.SetReply(req)
	resp.Compress = false
	resp.Answer = append(resp.Answer, &dns.A{
		Hdr: dns.RR_Header{Name: "example.org.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 300},
		A:   net.ParseIP("192.0.2.10"),
	})
	raw, err := resp.Pack()
	if err != nil {
		t.Fatal(err)
	}

	m, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(m.Answers) != 1 || m.Answers[0].Kind != AnswerUncompressed {
		t.Errorf("Decode() answers = %+v, want a not pointer marker", m.Answers)
	}
}

func TestDecodeCompressedA(t *testing.T) {
	req := new(dns.Msg)
	req.SetQuestion("example.org.", dns.TypeA)
	resp := new(dns.Msg)
	resp.SetReply(req)
	resp.Compress = true
	for _, ip := range []string{"192.0.2.10", "192.0.2.11"} {
		resp.Answer = append(resp.Answer, &dns.A{
			Hdr: dns.RR_Header{Name: "example.org.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 300},
			A:   net.ParseIP(ip),
		})
	}
	raw, err := resp.Pack()
	if err != nil {
		t.Fatal(err)
	}

	m, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	got := m.AnswerStrings()
	if len(got) != 2 || got[0] != "192.0.2.10" || got[1] != "192.0.2.11" {
		t.Errorf("Decode() answers = %v", got)
	}
}

func TestFingerprint(t *testing.T) {
	fp, err := Fingerprint(googleQuery)
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	if string(fp) != string(googleQuery[12:]) {
		t.Errorf("Fingerprint() = % x", fp)
	}

	other := append([]byte{}, googleQuery...)
	other[0], other[1], other[2] = 0x01, 0x02, 0x00
	fp2, err := Fingerprint(other)
	if err != nil {
		t.Fatal(err)
	}
	if string(fp) != string(fp2) {
		t.Error("Fingerprint() depends on transaction id or flags")
	}

	if _, err = Fingerprint([]byte{1, 2, 3, 4, 0, 0, 0, 0, 0, 0, 0, 0}); !errors.Is(err, ErrFormat) {
		t.Errorf("Fingerprint() without question error = %v", err)
	}
}

func TestHex(t *testing.T) {
	if got := Hex([]byte{0x00, 0xab, 0x10}); got != "00 ab 10" {
		t.Errorf("Hex() = %q", got)
	}
	if got := Hex(nil); got != "" {
		t.Errorf("Hex(nil) = %q", got)
	}
}

func TestDecodeTruncated(t *testing.T) {
	sources := [][]byte{googleFixture[2:], googleQuery, buildAAAA(t)}
	for _, src := range sources {
		for n := 0; n < len(src); n++ {
			_, _ = Decode(src[:n])
			_, _ = Fingerprint(src[:n])
		}
	}
}

func TestDecodeRandom(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	buf := make([]byte, 600)
	for i := 0; i < 20000; i++ {
		n := r.Intn(len(buf))
		r.Read(buf[:n])
		if n > 12 && i%2 == 0 {
			// keep counts small so the parsers get past the header
			buf[4], buf[6] = 0, 0
		}
		if _, err := Decode(buf[:n]); err != nil && !errors.Is(err, ErrFormat) {
			t.Fatalf("Decode() returned non format error %v", err)
		}
	}
}

func FuzzDecode(f *testing.F) {
	f.Add(googleFixture[2:])
	f.Add(googleQuery)
	f.Fuzz(func(t *testing.T, b []byte) {
		if _, err := Decode(b); err != nil && !errors.Is(err, ErrFormat) {
			t.Fatalf("Decode() returned non format error %v", err)
		}
	})
}
