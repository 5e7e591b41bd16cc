package models

type CertificateRequest struct {
	Domain string `json:"domain"`
	CSR    string `json:"csr"`
}

type CertificateResponse struct {
	Certificate       string `json:"certificate"`
	IssuerCertificate string `json:"issuerCertificate"`
	Serial            string `json:"serial"`
	ValidFrom         string `json:"validFrom"`
	ValidTo           string `json:"validTo"`
}
