/*
Package httpserver implements the Layer-0 verifier service.

Given a DeviceID CSR and an AliasKey certificate, the service checks that
they form a valid Layer-0 chain: the CSR is self-signed, the certificate is
issued under the CSR's subject and signed by its key, and the certificate's
CompositeDeviceID extension names the same DeviceID key. It reports the
identities and the firmware measurement the chain attests to. The service
never sees a CDI or a private key.

API Endpoints:

  - POST /api/l0/verify - Verify a chain (JSON or CBOR, see api.VerifyRequest)
  - GET /api/l0/algorithms - List supported hash and key algorithms
  - GET /livez - Liveness check
  - GET /readyz - Readiness check
  - GET /drain - Gracefully mark server as not ready
  - GET /undrain - Mark server as ready

Verification outcomes are reported in the body: an invalid chain is a 200
response with "valid": false. Malformed requests get 4xx status codes.

Metrics are served on a separate listener when MetricsAddr is set, and
pprof under /debug when EnablePprof is set.
*/
package httpserver
