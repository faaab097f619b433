package ebics

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/beevik/etree"
	"github.com/leifj/signedxml"
)

// XML-DSIG algorithm URIs used for the EBICS authentication signature.
const (
	algRSASHA256 = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	algSHA256    = "http://www.w3.org/2001/04/xmlenc#sha256"
	algC14N      = "http://www.w3.org/2001/10/xml-exc-c14n#"
)

// Signer adds an AuthSignature block to marshalled EBICS requests, signing
// the request header with RSA-SHA256. Banks that accept unsigned sandbox
// traffic simply get the request unchanged when no signer is configured.
type Signer struct {
	key  *rsa.PrivateKey
	cert *x509.Certificate
}

// NewSigner creates a request signer from an RSA private key and its
// authentication certificate.
func NewSigner(key *rsa.PrivateKey, cert *x509.Certificate) (*Signer, error) {
	if key == nil {
		return nil, fmt.Errorf("private key is required")
	}
	if cert == nil {
		return nil, fmt.Errorf("certificate is required")
	}
	if _, ok := cert.PublicKey.(*rsa.PublicKey); !ok {
		return nil, fmt.Errorf("certificate does not contain an RSA public key")
	}
	return &Signer{key: key, cert: cert}, nil
}

// Sign parses a marshalled ebicsRequest, inserts a Nonce and Timestamp into
// the static header, builds an AuthSignature template over the header and
// lets signedxml compute digest and signature values.
func (s *Signer) Sign(requestXML []byte) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(requestXML); err != nil {
		return nil, fmt.Errorf("parsing request XML: %w", err)
	}

	root := doc.Root()
	if root == nil || root.Tag != "ebicsRequest" {
		return nil, fmt.Errorf("document is not an ebicsRequest")
	}

	header := root.FindElement("./header")
	if header == nil {
		return nil, fmt.Errorf("request header not found")
	}

	static := header.FindElement("./static")
	if static == nil {
		return nil, fmt.Errorf("static header not found")
	}

	// TODO: insert Nonce/Timestamp at the schema position after UserID
	// instead of appending to the static header.
	nonce := static.CreateElement("Nonce")
	nonce.SetText(generateNonce())
	timestamp := static.CreateElement("Timestamp")
	timestamp.SetText(time.Now().UTC().Format("2006-01-02T15:04:05Z"))

	headerID := header.SelectAttrValue("ID", "")
	if headerID == "" {
		headerID = "H-" + generateNonce()[:16]
		header.CreateAttr("ID", headerID)
	}

	// AuthSignature sits between header and body.
	auth := etree.NewElement("AuthSignature")
	body := root.FindElement("./body")
	if body != nil {
		root.RemoveChild(body)
		root.AddChild(auth)
		root.AddChild(body)
	} else {
		root.AddChild(auth)
	}

	sig := auth.CreateElement("ds:Signature")
	sig.CreateAttr("xmlns:ds", "http://www.w3.org/2000/09/xmldsig#")

	signedInfo := sig.CreateElement("ds:SignedInfo")
	c14n := signedInfo.CreateElement("ds:CanonicalizationMethod")
	c14n.CreateAttr("Algorithm", algC14N)
	sigMethod := signedInfo.CreateElement("ds:SignatureMethod")
	sigMethod.CreateAttr("Algorithm", algRSASHA256)

	ref := signedInfo.CreateElement("ds:Reference")
	ref.CreateAttr("URI", "#"+headerID)
	transforms := ref.CreateElement("ds:Transforms")
	transform := transforms.CreateElement("ds:Transform")
	transform.CreateAttr("Algorithm", algC14N)
	digestMethod := ref.CreateElement("ds:DigestMethod")
	digestMethod.CreateAttr("Algorithm", algSHA256)
	digestValue := ref.CreateElement("ds:DigestValue")
	digestValue.SetText("placeholder")

	sigValue := sig.CreateElement("ds:SignatureValue")
	sigValue.SetText("placeholder")

	keyInfo := sig.CreateElement("ds:KeyInfo")
	x509Data := keyInfo.CreateElement("ds:X509Data")
	x509Cert := x509Data.CreateElement("ds:X509Certificate")
	x509Cert.SetText(base64.StdEncoding.EncodeToString(s.cert.Raw))

	xmlStr, err := doc.WriteToString()
	if err != nil {
		return nil, fmt.Errorf("writing request XML: %w", err)
	}

	signer, err := signedxml.NewSigner(xmlStr)
	if err != nil {
		return nil, fmt.Errorf("creating XML signer: %w", err)
	}
	signer.SetReferenceIDAttribute("ID")

	signed, err := signer.Sign(s.key)
	if err != nil {
		return nil, fmt.Errorf("signing request: %w", err)
	}

	return []byte(signed), nil
}

// Verify checks the AuthSignature of a signed request against the signer's
// certificate.
func (s *Signer) Verify(signedXML []byte) error {
	validator, err := signedxml.NewValidator(string(signedXML))
	if err != nil {
		return fmt.Errorf("creating XML validator: %w", err)
	}
	validator.Certificates = append(validator.Certificates, *s.cert)
	validator.SetReferenceIDAttribute("ID")

	if _, err := validator.ValidateReferences(); err != nil {
		return fmt.Errorf("signature validation failed: %w", err)
	}
	return nil
}

func generateNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
