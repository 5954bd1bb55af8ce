package office

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

const fodpHeader = `<?xml version="1.0" encoding="UTF-8"?>
<office:document xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0"
 xmlns:style="urn:oasis:names:tc:opendocument:xmlns:style:1.0"
 xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0"
 xmlns:draw="urn:oasis:names:tc:opendocument:xmlns:drawing:1.0"
 xmlns:fo="urn:oasis:names:tc:opendocument:xmlns:xsl-fo-compatible:1.0"
 xmlns:svg="urn:oasis:names:tc:opendocument:xmlns:svg-compatible:1.0"
 xmlns:presentation="urn:oasis:names:tc:opendocument:xmlns:presentation:1.0"
 office:version="1.2" office:mimetype="application/vnd.oasis.opendocument.presentation">
 <office:automatic-styles>
  <style:page-layout style:name="PM1">
   <style:page-layout-properties fo:page-width="33.867cm" fo:page-height="19.05cm" style:print-orientation="landscape"/>
  </style:page-layout>
  <style:style style:name="Ttitle" style:family="paragraph">
   <style:text-properties fo:font-size="32pt" fo:font-weight="bold"/>
  </style:style>
  <style:style style:name="Tcover" style:family="paragraph">
   <style:paragraph-properties fo:text-align="center"/>
   <style:text-properties fo:font-size="44pt" fo:font-weight="bold"/>
  </style:style>
  <style:style style:name="Tbody" style:family="paragraph">
   <style:text-properties fo:font-size="20pt"/>
  </style:style>
 </office:automatic-styles>
 <office:master-styles>
  <style:master-page style:name="Default" style:page-layout-name="PM1"/>
 </office:master-styles>
 <office:body>
  <office:presentation>
`

const fodpFooter = `  </office:presentation>
 </office:body>
</office:document>
`

// RenderFODP renders an outline as a flat OpenDocument presentation. A
// non-empty title adds a cover slide.
func RenderFODP(outline []Slide, title string) []byte {
	var b bytes.Buffer
	b.WriteString(fodpHeader)

	page := 0
	if title != "" {
		page++
		fmt.Fprintf(&b, "   <draw:page draw:name=\"page%d\" draw:master-page-name=\"Default\">\n", page)
		b.WriteString(`    <draw:frame presentation:class="title" svg:x="2cm" svg:y="7cm" svg:width="29.867cm" svg:height="4cm"><draw:text-box>`)
		writePara(&b, "Tcover", title)
		b.WriteString("</draw:text-box></draw:frame>\n   </draw:page>\n")
	}

	for _, s := range outline {
		page++
		fmt.Fprintf(&b, "   <draw:page draw:name=\"page%d\" draw:master-page-name=\"Default\">\n", page)
		b.WriteString(`    <draw:frame presentation:class="title" svg:x="1.5cm" svg:y="0.8cm" svg:width="30.867cm" svg:height="3cm"><draw:text-box>`)
		writePara(&b, "Ttitle", truncate(s.Title, maxTitleRunes))
		b.WriteString("</draw:text-box></draw:frame>\n")

		if len(s.Bullets) > 0 {
			b.WriteString(`    <draw:frame presentation:class="outline" svg:x="1.5cm" svg:y="4.2cm" svg:width="30.867cm" svg:height="13.8cm"><draw:text-box><text:list>`)
			for _, bullet := range s.Bullets {
				b.WriteString("<text:list-item>")
				writePara(&b, "Tbody", truncate(bullet, maxBulletRunes))
				b.WriteString("</text:list-item>")
			}
			b.WriteString("</text:list></draw:text-box></draw:frame>\n")
		}
		b.WriteString("   </draw:page>\n")
	}

	// An empty presentation still needs one page to convert.
	if page == 0 {
		b.WriteString("   <draw:page draw:name=\"page1\" draw:master-page-name=\"Default\"/>\n")
	}

	b.WriteString(fodpFooter)
	return b.Bytes()
}

func writePara(b *bytes.Buffer, style, text string) {
	fmt.Fprintf(b, `<text:p text:style-name="%s">`, style)
	_ = xml.EscapeText(b, []byte(text))
	b.WriteString("</text:p>")
}
