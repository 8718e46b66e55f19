// Package mongo implements the queue backend and the failed-job store on
// MongoDB using the official v2 driver.
//
// Each connection stores its records in one collection, one document per
// record with integer unix-second timestamps. The caller owns the
// *mongo.Client lifecycle; the store never disconnects it.
//
//	client, _ := mongostore.Dial(ctx, "mongodb://localhost:27017")
//	db := client.Database("app")
//	m.AddConnector("mongodb", mongostore.NewConnector(db))
package mongo
