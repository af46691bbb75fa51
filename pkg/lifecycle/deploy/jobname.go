/*
Copyright 2024 The Lifecycle Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package deploy

import (
	"fmt"
	"strings"

	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/constants"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/entity"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/util"
)

// newJobID is swapped in tests for deterministic names.
var newJobID = func() string {
	return util.RandomID(constants.JobIDAlphabet, constants.JobIDLength)
}

// jobName builds the deploy job name
// `<deploy.uuid>-deploy-<jobID>-<sha[0:7]>`, truncated to the kubernetes
// object-name limit with any trailing dash stripped.
func jobName(d *entity.Deploy, jobID string) string {
	sha := d.SHA
	if len(sha) > 7 {
		sha = sha[:7]
	}
	name := fmt.Sprintf("%s-deploy-%s-%s", strings.ToLower(d.UUID), jobID, sha)
	return util.TruncateResourceName(name, constants.MaxResourceNameLength)
}
