/*
Package tls serves the gateway listener over TLS.

A Reloader holds the serving certificate and hands it to every handshake
through tls.Config.GetCertificate, so a certificate renewed on disk takes
effect without restarting the gateway:

	certs := tls.NewReloader(cfg.CertFile, cfg.KeyFile, logger)
	if err := certs.Load(); err != nil {
		return err
	}
	go certs.Watch(ctx)

	tlsConfig, err := tls.ServerConfig(&cfg.Gateway.TLS, certs)

A certificate that fails to load or is outside its validity window is
rejected and the previous one keeps serving. Reloader.Check reports the
certificate's expiry for the health endpoint.
*/
package tls
