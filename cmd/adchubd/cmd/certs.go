package cmd

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"io/ioutil"
	"log"
	"math/big"
	"net"
	"time"

	"github.com/direct-connect/go-dc/keyprint"
)

type TLSConfig struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

func (c *TLSConfig) Load() (cert, key []byte, _ error) {
	var err error
	cert, err = ioutil.ReadFile(c.Cert)
	if err != nil {
		return
	}
	key, err = ioutil.ReadFile(c.Key)
	return
}

// Generate mints a self-signed cert/key pair for host, stamping the
// certificate's subject with this hub's own identity (name, and shard
// number if it's part of a federation) so an operator comparing
// keyprints across several linked hubs can tell them apart by
// inspecting the cert alone, not just by address.
func (c *TLSConfig) Generate(host, commonName string) (cert, key []byte, _ error) {
	// generate a new key-pair
	rootKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, err
	}

	rootCertTmpl, err := CertTemplate(commonName)
	if err != nil {
		return nil, nil, err
	}
	// describe what the certificate will be used for
	rootCertTmpl.IsCA = true
	rootCertTmpl.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature
	rootCertTmpl.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth}
	if ip := net.ParseIP(host); ip != nil {
		rootCertTmpl.IPAddresses = []net.IP{ip}
	} else {
		rootCertTmpl.DNSNames = []string{host}
	}

	_, rootCertPEM, err := CreateCert(rootCertTmpl, rootCertTmpl, &rootKey.PublicKey, rootKey)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating cert: %v", err)
	}

	// PEM encode the private key
	rootKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(rootKey),
	})

	err = ioutil.WriteFile(c.Cert, rootCertPEM, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("error writing cert: %v", err)
	}
	err = ioutil.WriteFile(c.Key, rootKeyPEM, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("error writing key: %v", err)
	}

	return rootCertPEM, rootKeyPEM, nil
}

// hubCommonName names this hub for a freshly minted cert's subject: its
// configured name, plus the shard number when it's running as part of a
// federation (spec.md §4.6), since that's the detail an operator needs
// to tell one linked hub's cert from another's.
func hubCommonName(conf *Config) string {
	if conf.Federation.ShardWidth > 0 {
		return fmt.Sprintf("%s (shard %d)", conf.Hub.Name, conf.Federation.ShardID)
	}
	return conf.Hub.Name
}

func loadCert(conf *Config) (*tls.Certificate, string, error) {
	tc := conf.Serve.TLS
	var (
		cert, key []byte
		err       error
	)
	if tc != nil {
		cert, key, err = tc.Load()
		log.Println("using certs:", tc.Cert, tc.Key)
	} else {
		tc = &TLSConfig{
			Cert: "hub.cert",
			Key:  "hub.key",
		}
		conf.Serve.TLS = tc
		cert, key, err = tc.Generate(conf.Serve.Host, hubCommonName(conf))
		log.Println("generated cert for", conf.Serve.Host)
	}
	if err != nil {
		return nil, "", err
	}

	// Create a TLS cert using the private key and certificate
	rootTLSCert, err := tls.X509KeyPair(cert, key)
	if err != nil {
		return nil, "", err
	}
	kp := ""
	if len(rootTLSCert.Certificate) != 0 {
		kp = keyprint.FromBytes(rootTLSCert.Certificate[0])
	}
	return &rootTLSCert, kp, nil
}

// CertTemplate builds a cert template with a random serial number and
// commonName identifying the hub the cert belongs to.
func CertTemplate(commonName string) (*x509.Certificate, error) {
	// generate a random serial number (a real cert authority would have some logic behind this)
	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return nil, errors.New("failed to generate serial number: " + err.Error())
	}

	tmpl := x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               pkix.Name{Organization: []string{"adchub"}, CommonName: commonName},
		SignatureAlgorithm:    x509.SHA256WithRSA,
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(time.Hour * 24 * 356),
		BasicConstraintsValid: true,
	}
	return &tmpl, nil
}

func CreateCert(template, parent *x509.Certificate, pub interface{}, parentPriv interface{}) (
	cert *x509.Certificate, certPEM []byte, err error) {

	certDER, err := x509.CreateCertificate(rand.Reader, template, parent, pub, parentPriv)
	if err != nil {
		return
	}
	// parse the resulting certificate so we can use it again
	cert, err = x509.ParseCertificate(certDER)
	if err != nil {
		return
	}
	// PEM encode the certificate (this is a standard TLS encoding)
	b := pem.Block{Type: "CERTIFICATE", Bytes: certDER}
	certPEM = pem.EncodeToMemory(&b)
	return
}
