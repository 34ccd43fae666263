// Copyright 2023 Northern.tech AS
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

package mongo

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/mendersoftware/go-lib-micro/config"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mopts "go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	dconfig "github.com/testfarm/devicehub/config"
	"github.com/testfarm/devicehub/model"
)

const (
	// DevicesCollectionName refers to the name of the collection of
	// registered devices
	DevicesCollectionName = "devices"

	// ResultsCollectionName refers to the name of the collection holding
	// the last command result per device serial
	ResultsCollectionName = "command_results"
)

// SetupDataStore returns the mongo data store
func SetupDataStore() (*DataStoreMongo, error) {
	ctx := context.Background()
	dbClient, err := NewClient(ctx, config.Config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to db")
	}
	return NewDataStoreWithClient(dbClient, config.Config), nil
}

// NewClient returns a mongo client
func NewClient(ctx context.Context, c config.Reader) (*mongo.Client, error) {

	clientOptions := mopts.Client()
	mongoURL := c.GetString(dconfig.SettingMongo)
	if !strings.Contains(mongoURL, "://") {
		return nil, errors.Errorf("Invalid mongoURL %q: missing schema.",
			mongoURL)
	}
	clientOptions.ApplyURI(mongoURL)

	username := c.GetString(dconfig.SettingDbUsername)
	if username != "" {
		credentials := mopts.Credential{
			Username: c.GetString(dconfig.SettingDbUsername),
		}
		password := c.GetString(dconfig.SettingDbPassword)
		if password != "" {
			credentials.Password = password
			credentials.PasswordSet = true
		}
		clientOptions.SetAuth(credentials)
	}

	if c.GetBool(dconfig.SettingDbSSL) {
		tlsConfig := &tls.Config{}
		tlsConfig.InsecureSkipVerify = c.GetBool(dconfig.SettingDbSSLSkipVerify)
		clientOptions.SetTLSConfig(tlsConfig)
	}

	// Acknowledge writes after the journal commit on the primary.
	clientOptions.SetWriteConcern(writeconcern.New(
		writeconcern.W(1), writeconcern.J(true),
	))

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to connect to mongo server")
	}

	if err = client.Ping(ctx, nil); err != nil {
		return nil, errors.Wrap(err, "Error reaching mongo server")
	}

	return client, nil
}

// DataStoreMongo is the data storage service
type DataStoreMongo struct {
	client *mongo.Client
	dbName string
}

// NewDataStoreWithClient initializes a DataStore object
func NewDataStoreWithClient(client *mongo.Client, c config.Reader) *DataStoreMongo {
	return &DataStoreMongo{
		client: client,
		dbName: c.GetString(dconfig.SettingDbName),
	}
}

// Ping verifies the connection to the database
func (db *DataStoreMongo) Ping(ctx context.Context) error {
	res := db.client.Database(db.dbName).
		RunCommand(ctx, bson.M{"ping": 1})
	return res.Err()
}

// UpsertDevice overwrites the stored registry entry for the device.
func (db *DataStoreMongo) UpsertDevice(
	ctx context.Context,
	device model.Device,
) error {
	collDevices := db.client.Database(db.dbName).
		Collection(DevicesCollectionName)

	update := bson.M{
		"$set": bson.M{
			"kind":          device.Kind,
			"state":         device.State,
			"allocation_id": device.AllocationID,
			"updated_ts":    device.UpdatedTs,
		},
		"$setOnInsert": bson.M{
			"created_ts": device.UpdatedTs,
		},
	}
	_, err := collDevices.UpdateOne(ctx,
		bson.M{"_id": device.Serial},
		update,
		mopts.Update().SetUpsert(true),
	)
	return errors.Wrap(err, "failed to upsert device")
}

// DeleteDevice removes the registry entry for the serial.
func (db *DataStoreMongo) DeleteDevice(ctx context.Context, serial string) error {
	collDevices := db.client.Database(db.dbName).
		Collection(DevicesCollectionName)

	_, err := collDevices.DeleteOne(ctx, bson.M{"_id": serial})
	return errors.Wrap(err, "failed to delete device")
}

// GetDevices returns every stored registry entry.
func (db *DataStoreMongo) GetDevices(ctx context.Context) ([]model.Device, error) {
	collDevices := db.client.Database(db.dbName).
		Collection(DevicesCollectionName)

	cur, err := collDevices.Find(ctx, bson.M{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list devices")
	}
	defer cur.Close(ctx)

	devices := []model.Device{}
	if err := cur.All(ctx, &devices); err != nil {
		return nil, errors.Wrap(err, "failed to decode devices")
	}
	return devices, nil
}

// UpsertCommandResult overwrites the stored result for the serial;
// results are never appended.
func (db *DataStoreMongo) UpsertCommandResult(
	ctx context.Context,
	serial string,
	result model.CommandResult,
) error {
	collResults := db.client.Database(db.dbName).
		Collection(ResultsCollectionName)

	update := bson.M{
		"$set": bson.M{
			"status":            result.Status,
			"error":             result.ErrorDetail,
			"free_device_state": result.FreeDeviceState,
		},
	}
	_, err := collResults.UpdateOne(ctx,
		bson.M{"_id": serial},
		update,
		mopts.Update().SetUpsert(true),
	)
	return errors.Wrap(err, "failed to upsert command result")
}

// GetCommandResult returns the stored result for the serial, or nil when
// none exists.
func (db *DataStoreMongo) GetCommandResult(
	ctx context.Context,
	serial string,
) (*model.CommandResult, error) {
	collResults := db.client.Database(db.dbName).
		Collection(ResultsCollectionName)

	result := &model.CommandResult{}
	err := collResults.FindOne(ctx, bson.M{"_id": serial}).Decode(result)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "failed to get command result")
	}
	return result, nil
}

// Close disconnects the client
func (db *DataStoreMongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	return db.client.Disconnect(ctx)
}
