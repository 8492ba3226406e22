package xml

import (
	"testing"
)

const nsDoc = `<?xml version="1.0" encoding="UTF-8"?>
<vsq3 xmlns="http://www.yamaha.co.jp/vocaloid/schema/vsq3/">
	<masterTrack>
		<resolution>480</resolution>
		<tempo><posTick>0</posTick><bpm>12000</bpm></tempo>
	</masterTrack>
	<vsTrack>
		<musicalPart><note><lyric><![CDATA[ら]]></lyric></note></musicalPart>
		<musicalPart><note><lyric>li</lyric></note></musicalPart>
	</vsTrack>
</vsq3>`

func TestLooks(t *testing.T) {
	tests := []struct {
		name string
		data string
		want bool
	}{
		{"xml", "<root/>", true},
		{"leading whitespace", "\r\n  <root/>", true},
		{"bom", "\xEF\xBB\xBF<root/>", true},
		{"timing text", "[00:00:00]la", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Looks([]byte(tt.data)); got != tt.want {
				t.Errorf("Looks(%q) = %v, want %v", tt.data, got, tt.want)
			}
		})
	}
}

func TestParseInvalidXML(t *testing.T) {
	tests := []struct {
		name string
		xml  string
	}{
		{"unclosed tag", "<root><element></root>"},
		{"mismatched tags", "<root></other>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.xml)); err == nil {
				t.Error("Parse should fail for invalid XML")
			}
		})
	}
}

func TestPath(t *testing.T) {
	if got, want := Path("a", "b"), "/*[local-name()='a']/*[local-name()='b']"; got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}
	if got, want := Relative("note"), "*[local-name()='note']"; got != want {
		t.Errorf("Relative() = %q, want %q", got, want)
	}
}

func TestNamespacedQuery(t *testing.T) {
	doc, err := Parse([]byte(nsDoc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if root := doc.Root(); root.Name() != "vsq3" {
		t.Errorf("Root().Name() = %q, want vsq3", root.Name())
	}

	master, err := doc.XPathFirst(Path("vsq3", "masterTrack"))
	if err != nil || master == nil {
		t.Fatalf("XPathFirst(masterTrack) = %v, %v", master, err)
	}
	res, err := master.ChildInt("resolution")
	if err != nil || res != 480 {
		t.Errorf("ChildInt(resolution) = %d, %v", res, err)
	}
	if _, err := master.ChildInt("missing"); err == nil {
		t.Error("ChildInt(missing) should fail")
	}

	parts, err := doc.XPath(Path("vsq3", "vsTrack", "musicalPart"))
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 2 {
		t.Fatalf("got %d parts, want 2", len(parts))
	}
	notes, err := parts[0].XPath(Relative("note"))
	if err != nil || len(notes) != 1 {
		t.Fatalf("notes = %v, %v", notes, err)
	}
	if got := notes[0].ChildText("lyric"); got != "ら" {
		t.Errorf("CDATA lyric = %q, want %q", got, "ら")
	}
}

func TestXPathInvalidExpression(t *testing.T) {
	doc, err := Parse([]byte(`<root/>`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if _, err := doc.XPath("[invalid"); err == nil {
		t.Error("Invalid XPath should return error")
	}
	if n, err := doc.XPathFirst("//missing"); err != nil || n != nil {
		t.Errorf("XPathFirst(missing) = %v, %v", n, err)
	}
}

func TestNilNode(t *testing.T) {
	var n *Node
	if n.Name() != "" || n.Text() != "" || n.Attr("x") != "" || n.Children() != nil {
		t.Error("nil node accessors should return zero values")
	}
}
