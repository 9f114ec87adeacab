// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

/*
Package inmem implements the store DAO interfaces. This implementation is meant
to help get an instance of Hygieia up and running quickly without a need to setup
a dedicated DB. Conditioned writes behave like their DynamoDB counterparts so the
bundle protocol can be exercised locally. Since the current implementation is not
scalable, it is recommended for test environments only.
*/
package inmem
