package support

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/idscan/internal/testutil"
)

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// theAAMVAPayload stores a doc string as payload.txt.
func (testCtx *TestContext) theAAMVAPayload(doc *godog.DocString) error {
	_, err := testCtx.WriteFile("payload.txt", []byte(doc.Content+"\n"))
	return err
}

// theAAMVAPayloadIn stores a doc string under the given name.
func (testCtx *TestContext) theAAMVAPayloadIn(name string, doc *godog.DocString) error {
	_, err := testCtx.WriteFile(name, []byte(doc.Content+"\n"))
	return err
}

// aBlankImage writes a white PNG of the given size.
func (testCtx *TestContext) aBlankImage(name string, width, height int) error {
	data, err := encodePNG(testutil.CreateTestImage(width, height, color.White))
	if err != nil {
		return err
	}
	_, err = testCtx.WriteFile(name, data)
	return err
}

// aLicenseImageEncoding writes a card carrying a PDF417 symbol for the
// given newline separated payload.
func (testCtx *TestContext) aLicenseImageEncoding(name string, doc *godog.DocString) error {
	payload := "@\n\x1e\rANSI 636014040002DL00410278ZC03190024DL" + strings.TrimSpace(doc.Content) + "\n"
	symbol, err := testutil.RenderPDF417(payload, 3)
	if err != nil {
		return fmt.Errorf("failed to render symbol: %w", err)
	}
	b := symbol.Bounds()
	data, err := encodePNG(testutil.DocumentWithSymbol(symbol, b.Dx()+120, b.Dy()*6))
	if err != nil {
		return err
	}
	_, err = testCtx.WriteFile(name, data)
	return err
}

// aFileContaining writes arbitrary text to a file.
func (testCtx *TestContext) aFileContaining(name, content string) error {
	_, err := testCtx.WriteFile(name, []byte(content))
	return err
}

// aPDFWithText writes a one-page PDF whose text layer holds the doc string lines.
func (testCtx *TestContext) aPDFWithText(name string, doc *godog.DocString) error {
	lines := strings.Split(strings.TrimSpace(doc.Content), "\n")
	_, err := testCtx.WriteFile(name, testutil.TextPDF(lines...))
	return err
}

// RegisterFixtureSteps registers steps that create input files.
func (testCtx *TestContext) RegisterFixtureSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the AAMVA payload:$`, testCtx.theAAMVAPayload)
	sc.Step(`^the AAMVA payload "([^"]*)":$`, testCtx.theAAMVAPayloadIn)
	sc.Step(`^a blank image "([^"]*)" of (\d+)x(\d+) pixels$`, testCtx.aBlankImage)
	sc.Step(`^a license image "([^"]*)" encoding:$`, testCtx.aLicenseImageEncoding)
	sc.Step(`^a file "([^"]*)" containing "([^"]*)"$`, testCtx.aFileContaining)
	sc.Step(`^a PDF "([^"]*)" with the text:$`, testCtx.aPDFWithText)
}
